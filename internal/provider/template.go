package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Renderer renders Liquid message templates with a parsed-template cache.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewRenderer creates a renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	// {{ first_name | titlecase }}
	engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " ")
	})

	return &Renderer{engine: engine}
}

// Render renders src against vars. An empty template renders to "".
func (r *Renderer) Render(src string, vars map[string]any) (string, error) {
	if src == "" {
		return "", nil
	}
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(src); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(src)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(src, parsed)
		tpl = parsed
	}
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// Envelope carries the routing facts of one send.
type Envelope struct {
	Channel        domain.Channel
	CampaignID     string
	IdempotencyKey string
	From           string
}

// Compose renders payload for lead and addresses the result. When the
// payload has no body and the sender carries a default template, the
// default is used.
func (r *Renderer) Compose(lead *domain.Lead, sender Sender, env Envelope, payload Payload) (Message, error) {
	if payload.Body == "" {
		if t, ok := sender.(Templated); ok {
			def := t.DefaultPayload()
			payload.Body = def.Body
			if payload.Subject == "" {
				payload.Subject = def.Subject
			}
		}
	}

	vars := lead.TemplateVars()
	for k, v := range payload.Vars {
		vars[k] = v
	}

	subject, err := r.Render(payload.Subject, vars)
	if err != nil {
		return Message{}, err
	}
	body, err := r.Render(payload.Body, vars)
	if err != nil {
		return Message{}, err
	}

	return Message{
		LeadID:         lead.ID,
		ClientID:       lead.ClientID,
		CampaignID:     env.CampaignID,
		Channel:        env.Channel,
		IdempotencyKey: env.IdempotencyKey,
		To:             lead.Contact(env.Channel.ContactField()),
		From:           env.From,
		RecipientName:  strings.TrimSpace(lead.FirstName + " " + lead.LastName),
		Subject:        subject,
		Body:           body,
	}, nil
}
