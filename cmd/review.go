package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/review"
	"github.com/sells-group/diligence-cli/pkg/notion"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run the review stages over a completed run",
	Long:  "Runs the analyst, associate, followUp and decision stages (or one --stage) over the answers of a stored run. Each invocation appends new stage results; earlier iterations are kept.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runID, _ := cmd.Flags().GetString("run")
		only, _ := cmd.Flags().GetString("stage")
		domains, _ := cmd.Flags().GetStringSlice("domain")
		refPath, _ := cmd.Flags().GetString("reference")
		publish, _ := cmd.Flags().GetBool("publish")

		var reference string
		if refPath != "" {
			data, err := os.ReadFile(refPath)
			if err != nil {
				return eris.Wrap(err, "read reference")
			}
			reference = string(data)
		}

		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()

		if publish && (env.Notion == nil || cfg.Notion.MemoDB == "") {
			return eris.New("--publish requires notion.token and notion.memo_db")
		}

		run, err := env.Store.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "review")
		}
		questions, err := loadQuestions(ctx, env)
		if err != nil {
			return err
		}
		answers, err := env.Store.ListAnswers(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "review: list answers")
		}
		history, err := env.Store.ListStageResults(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "review: list stage results")
		}

		pipeline, err := review.New(env.Caller, review.DefaultStages(env.ReviewModel),
			review.WithRecorder(env.Store),
			review.WithRunID(run.ID),
			review.WithHistory(history),
			review.WithValidator(env.Validator),
		)
		if err != nil {
			return err
		}

		if len(domains) == 0 {
			domains = domainsOf(questions, answers)
		}
		plan, err := stagePlan(pipeline.Stages(), only, domains)
		if err != nil {
			return err
		}

		for _, step := range plan {
			res, err := pipeline.RunStage(ctx, step.Stage, review.Inputs{
				Domain:    step.Domain,
				Answers:   answers,
				Questions: questions,
				Reference: reference,
			})
			if err != nil {
				return eris.Wrapf(err, "review: %s", step)
			}
			printStageResult(os.Stdout, *res)

			if publish {
				page, err := notion.PublishMemo(ctx, env.Notion, cfg.Notion.MemoDB, memoFor(run, *res))
				if err != nil {
					return eris.Wrapf(err, "review: publish %s", step)
				}
				zap.L().Info("published stage memo", zap.String("stage", res.StageName), zap.String("page_id", string(page.ID)))
			}
		}
		reportUsage(os.Stderr, env.Caller.Usage())
		return nil
	},
}

func init() {
	reviewCmd.Flags().String("run", "", "run id to review")
	_ = reviewCmd.MarkFlagRequired("run")
	reviewCmd.Flags().String("stage", "", "run only this stage (analyst, associate, followUp, decision)")
	reviewCmd.Flags().StringSlice("domain", nil, "domains to review (default every answered category)")
	reviewCmd.Flags().String("reference", "", "file with reference material passed to every stage")
	reviewCmd.Flags().Bool("publish", false, "publish each stage result to the Notion memo database")
	rootCmd.AddCommand(reviewCmd)
}

// stageStep is one RunStage call.
type stageStep struct {
	Stage  string
	Domain string
}

func (s stageStep) String() string {
	if s.Domain == "" {
		return s.Stage
	}
	return s.Stage + "/" + s.Domain
}

// stagePlan expands stages into calls: cross-domain stages run once, the
// others once per domain. A non-empty only restricts the plan to that stage.
func stagePlan(stages []review.StageConfig, only string, domains []string) ([]stageStep, error) {
	var plan []stageStep
	found := only == ""
	for _, s := range stages {
		if only != "" && s.Name != only {
			continue
		}
		found = true
		if s.CrossDomain {
			plan = append(plan, stageStep{Stage: s.Name})
			continue
		}
		for _, d := range domains {
			plan = append(plan, stageStep{Stage: s.Name, Domain: d})
		}
	}
	if !found {
		return nil, eris.Wrapf(review.ErrUnknownStage, "stage %q", only)
	}
	if len(plan) == 0 {
		return nil, eris.New("no domains have complete answers to review")
	}
	return plan, nil
}

// domainsOf returns the categories, in question order, that have at least
// one complete or edited answer.
func domainsOf(questions []model.Question, answers []model.AnswerRecord) []string {
	done := make(map[string]bool, len(answers))
	for _, a := range answers {
		if a.State == model.AnswerComplete || a.State == model.AnswerEdited {
			done[a.QuestionID] = true
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, q := range questions {
		if !done[q.ID] || seen[q.Category] {
			continue
		}
		seen[q.Category] = true
		out = append(out, q.Category)
	}
	return out
}

func memoFor(run *model.Run, r model.StageResult) notion.Memo {
	title := fmt.Sprintf("%s: %s #%d", run.Name, r.StageName, r.Iteration)
	if r.Domain != "" {
		title = fmt.Sprintf("%s: %s (%s) #%d", run.Name, r.StageName, r.Domain, r.Iteration)
	}
	return notion.Memo{
		Title:  title,
		Body:   r.OutputText,
		Domain: r.Domain,
		Stage:  r.StageName,
	}
}

func printStageResult(out io.Writer, r model.StageResult) {
	header := fmt.Sprintf("== %s", r.StageName)
	if r.Domain != "" {
		header += " (" + r.Domain + ")"
	}
	header += fmt.Sprintf(" iteration %d ==", r.Iteration)
	_, _ = fmt.Fprintln(out, header)
	_, _ = fmt.Fprintln(out, r.OutputText)
	for _, w := range r.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", w)
	}
	_, _ = fmt.Fprintln(out)
}
