package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/reward"
)

var (
	flagRewardSeverity string
	flagRewardAnalysts int
)

var rewardCmd = &cobra.Command{
	Use:   "reward",
	Short: "Preview the CLT payout for a ticket",
	Example: `  dsocctl reward --severity high --analysts 3
  dsocctl reward --severity critical --analysts 1 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sev, err := models.ParseSeverity(flagRewardSeverity)
		if err != nil {
			return err
		}

		calc, err := reward.NewCalculator(cfg.Reward.BaseAmount, cfg.Reward.CertifierShare)
		if err != nil {
			return err
		}
		b, err := calc.Calculate(sev, flagRewardAnalysts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		}

		fmt.Fprintf(out, "severity:         %s\n", b.Severity)
		fmt.Fprintf(out, "analysts:         %d\n", b.Analysts)
		fmt.Fprintf(out, "per analyst:      %s CLT\n", b.PerAnalyst.String())
		fmt.Fprintf(out, "analyst pool:     %s CLT\n", b.AnalystPool.String())
		fmt.Fprintf(out, "certifier reward: %s CLT\n", b.CertifierReward.String())
		fmt.Fprintf(out, "total:            %s CLT\n", b.Total.String())
		return nil
	},
}

func init() {
	rewardCmd.Flags().StringVar(&flagRewardSeverity, "severity", "medium", "ticket severity (low, medium, high, critical)")
	rewardCmd.Flags().IntVar(&flagRewardAnalysts, "analysts", 1, "number of assigned analysts")
}
