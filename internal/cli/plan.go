package cli

import (
	"encoding/json"
	"fmt"

	"github.com/kolah/mcpforge/internal/authplan"
	"github.com/kolah/mcpforge/internal/compose"
	"github.com/kolah/mcpforge/internal/config"
	"github.com/kolah/mcpforge/internal/naming"
	"github.com/kolah/mcpforge/internal/partition"
	"github.com/kolah/mcpforge/internal/pipeline"
	"github.com/spf13/cobra"
)

// planReport is the JSON printed by "mcpforge plan".
type planReport struct {
	ServerName string           `json:"server_name"`
	BackendURL string           `json:"backend_url"`
	Modules    []moduleReport   `json:"modules"`
	Auth       authReport       `json:"auth"`
	Chain      compose.Chain    `json:"chain"`
	Provider   compose.Provider `json:"provider"`
	Graph      partition.Graph  `json:"graph"`
	EventStore bool             `json:"event_store"`
	Warnings   []string         `json:"warnings,omitempty"`
}

type moduleReport struct {
	Name           string                       `json:"name"`
	Tag            string                       `json:"tag,omitempty"`
	RequiredScopes []string                     `json:"required_scopes,omitempty"`
	Tools          []naming.Tool                `json:"tools"`
	Resources      []partition.ResourceTemplate `json:"resources,omitempty"`
}

type authReport struct {
	Schemes       []string       `json:"schemes,omitempty"`
	Flows         []string       `json:"flows,omitempty"`
	Scopes        []string       `json:"scopes,omitempty"`
	JWKSURI       authplan.Value `json:"jwks_uri"`
	Issuer        authplan.Value `json:"issuer"`
	Audience      authplan.Value `json:"audience"`
	BearerFormat  string         `json:"bearer_format"`
	DefaultScopes []string       `json:"default_scopes,omitempty"`
}

func PlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the generation plan as JSON without writing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}
			plan, _, err := buildPlan(cmd, cfg)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(newPlanReport(plan), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding plan: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	config.BindFlags(cmd)

	return cmd
}

func newPlanReport(plan *pipeline.Plan) planReport {
	r := planReport{
		ServerName: plan.ServerName,
		BackendURL: plan.BackendURL,
		Chain:      plan.Chain,
		Provider:   plan.Provider,
		Graph:      plan.Graph,
		EventStore: plan.EventStoreEnabled(),
		Warnings:   plan.Warnings.Strings(),
		Auth: authReport{
			Schemes:       plan.Auth.SchemeNames(),
			Scopes:        plan.Auth.AllScopes,
			JWKSURI:       plan.Auth.JWKSURI,
			Issuer:        plan.Auth.Issuer,
			Audience:      plan.Auth.Audience,
			BearerFormat:  plan.Auth.BearerFormat,
			DefaultScopes: plan.Auth.DefaultScopes,
		},
	}
	for _, f := range plan.Auth.EffectiveFlows {
		r.Auth.Flows = append(r.Auth.Flows, string(f))
	}
	for _, m := range plan.Modules {
		r.Modules = append(r.Modules, moduleReport{
			Name:           m.Name,
			Tag:            m.Tag,
			RequiredScopes: m.RequiredScopes,
			Tools:          m.Tools,
			Resources:      m.Resources,
		})
	}
	return r
}
