// Package briefs turns approved opportunities into channel-specific content
// packages: generation fan-out, review transitions, and append-only angle
// regeneration.
package briefs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/atlasmedia/pulse/internal/domain"
)

// PromptContext is the typed template context for one generation. What
// varies lives here; how it renders lives in the Liquid templates below.
type PromptContext struct {
	Title        string
	Industry     string
	Channel      domain.Channel
	SignalTitles []string
	Excerpts     []string
	Instruction  string
	ClientName   string
}

const systemTemplate = `You are a senior content strategist at a marketing agency.
You write {{ channel }} content for clients in the {{ industry }} industry.
Respond with ONLY a JSON object, no prose around it.`

var channelTemplates = map[domain.Channel]string{
	domain.ChannelYouTube: `Create a YouTube video brief for the trending topic "{{ title }}".
{% if client_name != "" %}The client is {{ client_name }}.{% endif %}
Source discussions:
{% for t in signal_titles %}- {{ t }}
{% endfor %}
{% if instruction != "" %}Angle instruction from the reviewer: {{ instruction }}{% endif %}
Return JSON with keys: "hook" (opening 15 seconds), "script" (full outline-style script), "call_to_action", "angle" (one sentence describing the take).`,

	domain.ChannelInstagram: `Create an Instagram post brief for the trending topic "{{ title }}".
{% if client_name != "" %}The client is {{ client_name }}.{% endif %}
Source discussions:
{% for t in signal_titles %}- {{ t }}
{% endfor %}
{% if instruction != "" %}Angle instruction from the reviewer: {{ instruction }}{% endif %}
Return JSON with keys: "hook", "post" (caption text), "hashtags" (array of strings), "call_to_action", "angle".`,

	domain.ChannelBlog: `Create a blog article brief for the trending topic "{{ title }}".
{% if client_name != "" %}The client is {{ client_name }}.{% endif %}
Source discussions:
{% for t in signal_titles %}- {{ t }}
{% endfor %}
Excerpts for grounding:
{% for e in excerpts %}> {{ e }}
{% endfor %}
{% if instruction != "" %}Angle instruction from the reviewer: {{ instruction }}{% endif %}
Return JSON with keys: "hook" (working headline), "outline" (array of section headings), "call_to_action", "angle".`,
}

// PromptRenderer renders channel prompts from typed contexts, caching
// parsed templates.
type PromptRenderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[domain.Channel]*liquid.Template
}

// NewPromptRenderer creates a renderer with the channel templates compiled
// on demand.
func NewPromptRenderer() *PromptRenderer {
	return &PromptRenderer{engine: liquid.NewEngine()}
}

// System renders the system prompt for a channel/industry pair.
func (p *PromptRenderer) System(ctx PromptContext) (string, error) {
	out, err := p.engine.ParseAndRenderString(systemTemplate, bindings(ctx))
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return out, nil
}

// Prompt renders the generation prompt for the channel in ctx.
func (p *PromptRenderer) Prompt(ctx PromptContext) (string, error) {
	src, ok := channelTemplates[ctx.Channel]
	if !ok {
		return "", fmt.Errorf("no template for channel %q", ctx.Channel)
	}

	var tpl *liquid.Template
	if cached, ok := p.cache.Load(ctx.Channel); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := p.engine.ParseString(src)
		if err != nil {
			return "", fmt.Errorf("parse %s template: %w", ctx.Channel, err)
		}
		p.cache.Store(ctx.Channel, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings(ctx))
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", ctx.Channel, err)
	}
	return strings.TrimSpace(out), nil
}

func bindings(ctx PromptContext) map[string]interface{} {
	return map[string]interface{}{
		"title":         ctx.Title,
		"industry":      ctx.Industry,
		"channel":       string(ctx.Channel),
		"signal_titles": ctx.SignalTitles,
		"excerpts":      ctx.Excerpts,
		"instruction":   ctx.Instruction,
		"client_name":   ctx.ClientName,
	}
}
