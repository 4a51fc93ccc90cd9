package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hireline/internal/app"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/repo"
	"hireline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Hireline CLI",
	Long: `Hireline tracks job applications through their lifecycle with a full audit trail.
- Workspace: the .hireline directory holding the database; hireline.yml configures auth and webhooks.
- Applications: move APPLIED -> REVIEWED -> SHORTLISTED -> INTERVIEW -> OFFER -> HIRED, with REJECTED as an exit at every step.
- History: every status change lands in an append-only ledger; replaying it reconstructs the current status.
- Activity: submissions, views and status changes feed a cross-entity event stream ('hl activity tail').
- Conversations: one messaging thread per job, employer and candidate, created on demand.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HIRELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier (empty acts as system)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(employerCmd())
	rootCmd.AddCommand(candidateCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(conversationCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorFromFlags() domain.Actor {
	if id := strings.TrimSpace(viper.GetString("actor-id")); id != "" {
		return domain.UserActor(id)
	}
	return domain.SystemActor()
}

func employerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "employer", Short: "Manage employers"}
	cmd.AddCommand(employerCreateCmd())
	cmd.AddCommand(employerListCmd())
	return cmd
}

func employerCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create employer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.CreateEmployer(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "employer name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func employerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List employers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEmployers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func candidateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "candidate", Short: "Manage candidates"}
	cmd.AddCommand(candidateCreateCmd())
	cmd.AddCommand(candidateListCmd())
	return cmd
}

func candidateCreateCmd() *cobra.Command {
	var name, headline, profilePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create candidate, optionally importing a profile from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile domain.Profile
			if profilePath != "" {
				data, err := os.ReadFile(profilePath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &profile); err != nil {
					return fmt.Errorf("parse profile: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCandidate(ctx, name, headline, profile)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "candidate name")
	cmd.Flags().StringVar(&headline, "headline", "", "headline")
	cmd.Flags().StringVar(&profilePath, "profile", "", "profile JSON file (skills, experience, education, certifications, documents)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func candidateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCandidates(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "job", Short: "Manage jobs"}
	cmd.AddCommand(jobCreateCmd())
	cmd.AddCommand(jobListCmd())
	return cmd
}

func jobCreateCmd() *cobra.Command {
	var employerID, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.CreateJob(ctx, employerID, title)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&employerID, "employer", "", "employer id")
	cmd.Flags().StringVar(&title, "title", "", "job title")
	_ = cmd.MarkFlagRequired("employer")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobListCmd() *cobra.Command {
	var employerID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListJobs(ctx, employerID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&employerID, "employer", "", "filter by employer id")
	return cmd
}

func applicationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "application", Short: "Manage applications"}
	cmd.AddCommand(applicationSubmitCmd())
	cmd.AddCommand(applicationListCmd())
	cmd.AddCommand(applicationShowCmd())
	cmd.AddCommand(applicationHistoryCmd())
	cmd.AddCommand(applicationTransitionCmd())
	cmd.AddCommand(applicationViewCmd())
	return cmd
}

func applicationSubmitCmd() *cobra.Command {
	var jobID, candidateID string
	var matchScore float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			var score *float64
			if cmd.Flags().Changed("match-score") {
				score = &matchScore
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SubmitApplication(ctx, engine.SubmitOptions{
					JobID:       jobID,
					CandidateID: candidateID,
					MatchScore:  score,
					Actor:       actorFromFlags(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id")
	cmd.Flags().Float64Var(&matchScore, "match-score", 0, "match score (0..1)")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func applicationListCmd() *cobra.Command {
	var f repo.ApplicationFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Status != "" {
				s, err := domain.ParseStatus(f.Status)
				if err != nil {
					return err
				}
				f.Status = string(s)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListApplications(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Candidate", "Status", "Viewed", "Created"})
				for _, a := range items {
					viewed := ""
					if a.ViewedByEmployerAt != nil {
						viewed = *a.ViewedByEmployerAt
					}
					tw.AppendRow(table.Row{a.ID, a.JobID, a.CandidateID, a.Status, viewed, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.JobID, "job", "", "filter by job id")
	cmd.Flags().StringVar(&f.CandidateID, "candidate", "", "filter by candidate id")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func applicationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func applicationHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show status history, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetApplication(ctx, args[0]); err != nil {
					return err
				}
				history, err := r.ListStatusHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(history)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"From", "To", "Changed By", "Note", "At"})
				for _, h := range history {
					from := ""
					if h.FromStatus != nil {
						from = string(*h.FromStatus)
					}
					tw.AppendRow(table.Row{from, h.ToStatus, h.ChangedBy.String(), h.Note, h.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func applicationTransitionCmd() *cobra.Command {
	var toStatus, note string
	var markViewed bool
	cmd := &cobra.Command{
		Use:   "transition <id>",
		Short: "Move an application to a new status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := domain.ParseStatus(toStatus)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Transition(ctx, engine.TransitionOptions{
					ApplicationID: args[0],
					ToStatus:      to,
					Note:          note,
					Actor:         actorFromFlags(),
					MarkViewed:    markViewed,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&toStatus, "to", "", "target status")
	cmd.Flags().StringVar(&note, "note", "", "note for the history entry")
	cmd.Flags().BoolVar(&markViewed, "mark-viewed", false, "also record an employer view")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func applicationViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Record an employer view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RecordView(ctx, args[0], actorFromFlags())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "conversation", Short: "Manage conversations"}
	cmd.AddCommand(conversationStartCmd())
	cmd.AddCommand(conversationShowCmd())
	return cmd
}

func conversationStartCmd() *cobra.Command {
	var jobID, employerID, candidateID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Find or create the conversation for a job and candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.StartConversation(ctx, jobID, employerID, candidateID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&employerID, "employer", "", "employer id (defaults to the job's employer)")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func conversationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetConversation(ctx, args[0])
				if err != nil {
					return err
				}
				msgs, err := r.ListMessages(ctx, c.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"conversation": c,
					"messages":     msgs,
				})
			})
		},
	}
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "activity", Short: "Inspect the activity log"}
	cmd.AddCommand(activityTailCmd())
	return cmd
}

func activityTailCmd() *cobra.Command {
	var f repo.ActivityFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail activity entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActivity(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Actor", "Application", "At"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.Type, e.Actor.String(), e.ApplicationID, e.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of entries")
	cmd.Flags().StringVar(&f.Type, "type", "", "entry type filter")
	cmd.Flags().StringVar(&f.ApplicationID, "application", "", "application id filter")
	cmd.Flags().StringVar(&f.CandidateID, "candidate", "", "candidate id filter")
	cmd.Flags().StringVar(&f.JobID, "job", "", "job id filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the key is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			raw := make([]byte, 24)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			key := "hlk_" + hex.EncodeToString(raw)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				record := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(key),
				}
				if err := r.InsertAPIKey(ctx, record); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       record.ID,
					"actor_id": record.ActorID,
					"key":      key,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("HIRELINE_JWT_SECRET"),
				AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = a.Config.Auth.JWTSecret
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartNotifyDispatcher(cmd.Context(), a.Engine)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Hireline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine.Repo)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
