package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shadowsight/shadowsight/internal/scheduler"
	"github.com/shadowsight/shadowsight/internal/session"
)

var rescoreSession string

func init() {
	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute stored trust scores from events",
		Long:  "Recompute the trust score, flag count and severity of one session, or of every session when --session is not given.",
		Run:   runRescore,
	}
	cmd.Flags().StringVarP(&rescoreSession, "session", "s", "", "Only rescore this session ID")

	RootCmd.AddCommand(cmd)
}

func runRescore(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	pub, err := openPublisher(ctx, cfg)
	if err != nil {
		exitErr("open publisher", err)
	}
	defer pub.Close()

	svc, err := session.NewService(st, pub, session.WithWeights(cfg.ScoreWeights()))
	if err != nil {
		exitErr("create service", err)
	}

	if rescoreSession != "" {
		d, changed, err := svc.Rescore(ctx, rescoreSession)
		if err != nil {
			exitErr("rescore", err)
		}
		state := "unchanged"
		if changed {
			state = "updated"
		}
		fmt.Printf("%s: score=%d flags=%d severity=%s (%s)\n", rescoreSession, d.TrustScore, d.Flags, d.Severity, state)
		return
	}

	res, err := scheduler.New(st, svc, cfg.RescoreWorkers, cfg.RescoreBatch, cfg.RescoreInterval).RunOnce(ctx)
	if err != nil {
		exitErr("rescore", err)
	}
	fmt.Printf("checked=%d updated=%d failed=%d\n", res.Checked, res.Updated, res.Failed)
}
