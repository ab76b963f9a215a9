package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rcliao/automarket/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"profile"},
		Short:   "Show the organisation profile",
		Run:     runWhoami,
	}

	RootCmd.AddCommand(cmd)
}

type profileView struct {
	model.OrganisationProfile
	CampaignsUsagePercent float64 `json:"campaigns_usage_percent"`
}

func runWhoami(cmd *cobra.Command, args []string) {
	e, err := openEnv(cmd.Context())
	if err != nil {
		exitErr("whoami", err)
	}
	defer e.Close()
	e.requireLogin(cmd.Context(), "whoami")

	p, ok := e.session.Profile()
	if !ok {
		exitErr("whoami", fmt.Errorf("no organisation profile stored; log in again"))
	}

	view := profileView{OrganisationProfile: p, CampaignsUsagePercent: p.Usage.CampaignsUsagePercent()}
	output(cmd.OutOrStdout(), view, func(w io.Writer) { printProfile(w, p) })
}

func printProfile(w io.Writer, p model.OrganisationProfile) {
	pr := message.NewPrinter(language.English)
	created := "N/A"
	if p.CreatedAt != nil {
		created = p.CreatedAt.Format("January 2, 2006")
	}
	pr.Fprintf(w, "%s\n", p.Name)
	pr.Fprintf(w, "  Email:    %s\n", orNA(p.BusinessEmail))
	pr.Fprintf(w, "  Website:  %s\n", orNA(p.Website))
	pr.Fprintf(w, "  Joined:   %s\n", created)
	pr.Fprintf(w, "  Plan:     %s (%s)\n", p.PlanTier, p.PlanStatus)
	pr.Fprintf(w, "  Campaigns %d / %d (%.0f%%)\n", p.Usage.CampaignsUsed, p.Usage.CampaignsLimit, p.Usage.CampaignsUsagePercent())
	pr.Fprintf(w, "  Contacts  %d\n", p.Usage.Contacts)
	pr.Fprintf(w, "  Emails    %d this month\n", p.Usage.EmailsThisMonth)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
