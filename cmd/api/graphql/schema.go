// Package graphql serves the read-only dashboard schema.
package graphql

import (
	"fmt"
	"sort"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/DEEPML1818/dsoc/cmd/api/service"
	"github.com/DEEPML1818/dsoc/common/models"
)

var ticketType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Ticket",
		Fields: graphql.Fields{
			"ticketId":     &graphql.Field{Type: graphql.Int},
			"title":        &graphql.Field{Type: graphql.String},
			"description":  &graphql.Field{Type: graphql.String},
			"category":     &graphql.Field{Type: graphql.String},
			"severity":     &graphql.Field{Type: graphql.String},
			"status":       &graphql.Field{Type: graphql.String},
			"client":       &graphql.Field{Type: graphql.String},
			"analysts":     &graphql.Field{Type: graphql.NewList(graphql.String)},
			"certifier":    &graphql.Field{Type: graphql.String},
			"report":       &graphql.Field{Type: graphql.String},
			"rewardAmount": &graphql.Field{Type: graphql.String}, // decimal CLT
			"chain":        &graphql.Field{Type: graphql.String},
			"txHash":       &graphql.Field{Type: graphql.String},
			"createdAt":    &graphql.Field{Type: graphql.String},
			"updatedAt":    &graphql.Field{Type: graphql.String},
		},
	},
)

var statusCountType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "StatusCount",
		Fields: graphql.Fields{
			"status": &graphql.Field{Type: graphql.String},
			"count":  &graphql.Field{Type: graphql.Int},
		},
	},
)

var dashboardType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Dashboard",
		Fields: graphql.Fields{
			"address": &graphql.Field{Type: graphql.String},
			"role":    &graphql.Field{Type: graphql.String},
			"total":   &graphql.Field{Type: graphql.Int},
			"counts":  &graphql.Field{Type: graphql.NewList(statusCountType)},
			"recent":  &graphql.Field{Type: graphql.NewList(ticketType)},
			"pending": &graphql.Field{Type: graphql.NewList(ticketType)},
		},
	},
)

// NewSchema builds the dashboard schema over the ticket service
func NewSchema(tickets *service.TicketService) (graphql.Schema, error) {
	queryType := graphql.NewObject(
		graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"ticket": &graphql.Field{
					Type: ticketType,
					Args: graphql.FieldConfigArgument{
						"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						id, _ := p.Args["id"].(int)
						t, err := tickets.Get(p.Context, int64(id))
						if err != nil {
							return nil, fmt.Errorf("error getting ticket %d: %w", id, err)
						}
						return ticketMap(t), nil
					},
				},
				"tickets": &graphql.Field{
					Type: graphql.NewList(ticketType),
					Args: graphql.FieldConfigArgument{
						"status": &graphql.ArgumentConfig{Type: graphql.String},
						"client": &graphql.ArgumentConfig{Type: graphql.String},
						"limit":  &graphql.ArgumentConfig{Type: graphql.Int},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						filter := models.TicketFilter{}
						if s, ok := p.Args["status"].(string); ok && s != "" {
							status, err := models.ParseTicketStatus(s)
							if err != nil {
								return nil, err
							}
							filter.Status = status
						}
						filter.ClientAddress, _ = p.Args["client"].(string)
						filter.Limit, _ = p.Args["limit"].(int)

						list, err := tickets.List(p.Context, filter)
						if err != nil {
							return nil, err
						}
						return ticketMaps(list), nil
					},
				},
				"dashboard": &graphql.Field{
					Type: dashboardType,
					Args: graphql.FieldConfigArgument{
						"address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						address, _ := p.Args["address"].(string)
						d, err := tickets.Dashboard(p.Context, address)
						if err != nil {
							return nil, err
						}
						return dashboardMap(d), nil
					},
				},
			},
		},
	)

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// NewHandler serves schema over HTTP
func NewHandler(schema *graphql.Schema) *handler.Handler {
	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: false,
	})
}

func ticketMap(t *models.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"ticketId":     t.TicketID,
		"title":        t.Title,
		"description":  t.Description,
		"category":     t.Category,
		"severity":     string(t.Severity),
		"status":       string(t.Status),
		"client":       t.ClientAddress,
		"analysts":     t.Analysts,
		"certifier":    t.CertifierAddress,
		"report":       t.Report,
		"rewardAmount": t.RewardAmount.String(),
		"chain":        t.Chain,
		"txHash":       t.TxHash,
		"createdAt":    t.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":    t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func ticketMaps(list []*models.Ticket) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, t := range list {
		out = append(out, ticketMap(t))
	}
	return out
}

func dashboardMap(d *service.Dashboard) map[string]interface{} {
	statuses := make([]string, 0, len(d.Counts))
	total := 0
	for s, n := range d.Counts {
		statuses = append(statuses, string(s))
		total += n
	}
	sort.Strings(statuses)

	counts := make([]map[string]interface{}, 0, len(statuses))
	for _, s := range statuses {
		counts = append(counts, map[string]interface{}{
			"status": s,
			"count":  d.Counts[models.TicketStatus(s)],
		})
	}

	return map[string]interface{}{
		"address": d.Address,
		"role":    string(d.Role),
		"total":   total,
		"counts":  counts,
		"recent":  ticketMaps(d.Recent),
		"pending": ticketMaps(d.Pending),
	}
}
