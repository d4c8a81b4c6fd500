package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default model selectors. Heavier analytical agents get the pro model.
const (
	modelFast = "gemini-2.5-flash"
	modelPro  = "gemini-2.5-pro"
)

// ── Prompt helpers ──────────────────────────────────────────

// str reads a string field from the payload, empty when absent.
func str(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// strOr reads a string field with a fallback for absent/empty values.
func strOr(payload map[string]any, key, fallback string) string {
	if s := str(payload, key); s != "" {
		return s
	}
	return fallback
}

// joined reads a []any of strings and joins the entries.
func joined(payload map[string]any, key string) string {
	raw, _ := payload[key].([]any)
	parts := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// ── Output schemas ──────────────────────────────────────────

var (
	personaSchema = json.RawMessage(`{
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"age_range": {"type": "string"},
				"occupation": {"type": "string"},
				"goals": {"type": "array", "items": {"type": "string"}},
				"pain_points": {"type": "array", "items": {"type": "string"}},
				"channels": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["name", "goals", "pain_points"]
		}
	}`)

	keywordSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"primary": {"type": "array", "items": {
				"type": "object",
				"properties": {
					"keyword": {"type": "string"},
					"intent": {"type": "string"},
					"difficulty": {"type": "string"}
				},
				"required": ["keyword", "intent"]
			}},
			"long_tail": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["primary"]
	}`)

	subjectLinesSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"subjects": {"type": "array", "items": {"type": "string"}},
			"preview_texts": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["subjects"]
	}`)

	socialCalendarSchema = json.RawMessage(`{
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"day": {"type": "string"},
				"platform": {"type": "string"},
				"post": {"type": "string"},
				"hashtags": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["day", "platform", "post"]
		}
	}`)

	seoMetaSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"description": {"type": "string"},
			"slug": {"type": "string"}
		},
		"required": ["title", "description"]
	}`)

	faqSchema = json.RawMessage(`{
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"question": {"type": "string"},
				"answer": {"type": "string"}
			},
			"required": ["question", "answer"]
		}
	}`)

	critiqueSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"score": {"type": "number"},
			"strengths": {"type": "array", "items": {"type": "string"}},
			"weaknesses": {"type": "array", "items": {"type": "string"}},
			"recommendations": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["score"]
	}`)

	audienceSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"segments": {"type": "array", "items": {
				"type": "object",
				"properties": {
					"label": {"type": "string"},
					"share": {"type": "string"},
					"messaging_angle": {"type": "string"}
				},
				"required": ["label"]
			}},
			"summary": {"type": "string"}
		},
		"required": ["segments"]
	}`)

	hashtagSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"broad": {"type": "array", "items": {"type": "string"}},
			"niche": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["broad", "niche"]
	}`)
)

// ── Contract table ──────────────────────────────────────────
//
// The whole gateway is generic over this table. Three families:
// text-only, schema-constrained, and grounded (search/maps).

var contractTable = []Contract{
	{
		Name:         "persona_builder",
		Model:        modelPro,
		OutputSchema: personaSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Build %s detailed buyer personas for the following business.\nBusiness: %s\nIndustry: %s\nProduct: %s\nReturn only JSON matching the requested schema.",
				strOr(p, "count", "3"), str(p, "business"), str(p, "industry"), str(p, "product"))
		},
	},
	{
		Name:         "keyword_strategist",
		Model:        modelPro,
		OutputSchema: keywordSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Develop an SEO keyword strategy.\nBusiness: %s\nTarget market: %s\nSeed topics: %s\nClassify each primary keyword by search intent and difficulty.",
				str(p, "business"), str(p, "market"), joined(p, "topics"))
		},
	},
	{
		Name:           "competitor_scan",
		Model:          modelPro,
		GroundingTools: []string{ToolWebSearch},
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Research the current competitive landscape for %q in the %s space. Identify the main competitors, their positioning, and pricing signals. Cite your sources.",
				str(p, "business"), str(p, "industry"))
		},
	},
	{
		Name:           "local_listings",
		Model:          modelFast,
		GroundingTools: []string{ToolPlaceSearch},
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Find businesses similar to %q near %s. For each, note what their listing does well that %q could adopt.",
				str(p, "business"), str(p, "location"), str(p, "business"))
		},
	},
	{
		Name:           "market_pulse",
		Model:          modelFast,
		GroundingTools: []string{ToolWebSearch},
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Summarize this week's news and consumer trends relevant to a %s business targeting %s. Cite your sources.",
				str(p, "industry"), strOr(p, "market", "a general audience"))
		},
	},
	{
		Name:  "ad_copywriter",
		Model: modelFast,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Write %s ad variations for %s.\nProduct: %s\nOffer: %s\nTone: %s\nKeep each under 90 characters of headline and 180 of body.",
				strOr(p, "count", "5"), strOr(p, "platform", "Google Ads"),
				str(p, "product"), str(p, "offer"), strOr(p, "tone", "confident"))
		},
	},
	{
		Name:  "blog_outliner",
		Model: modelFast,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Outline a blog post titled %q for %s. Audience: %s. Include an H2/H3 structure, a hook, and a call to action.",
				str(p, "title"), str(p, "business"), strOr(p, "audience", "prospective customers"))
		},
	},
	{
		Name:         "email_subject_lines",
		Model:        modelFast,
		OutputSchema: subjectLinesSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Generate 8 email subject lines with matching preview texts.\nCampaign: %s\nAudience: %s\nGoal: %s",
				str(p, "campaign"), str(p, "audience"), strOr(p, "goal", "opens"))
		},
	},
	{
		Name:         "social_calendar",
		Model:        modelPro,
		OutputSchema: socialCalendarSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Plan a 7-day social media calendar for %s.\nPlatforms: %s\nTheme: %s\nOne post per platform per day.",
				str(p, "business"), strOr(p, "platforms", "Instagram, LinkedIn"), str(p, "theme"))
		},
	},
	{
		Name:  "brand_voice_audit",
		Model: modelPro,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Audit the brand voice of the following copy and describe its tone, vocabulary, and consistency. Suggest three concrete adjustments.\n---\n%s",
				str(p, "copy"))
		},
	},
	{
		Name:         "seo_meta",
		Model:        modelFast,
		OutputSchema: seoMetaSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Write an SEO meta title (max 60 chars), meta description (max 155 chars), and URL slug for a page about %q targeting the keyword %q.",
				str(p, "topic"), str(p, "keyword"))
		},
	},
	{
		Name:         "faq_generator",
		Model:        modelFast,
		OutputSchema: faqSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Generate %s frequently asked questions with clear answers for %s.\nProduct: %s",
				strOr(p, "count", "6"), str(p, "business"), str(p, "product"))
		},
	},
	{
		Name:  "tagline_generator",
		Model: modelFast,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Propose 10 taglines for %s. Positioning: %s. Avoid clichés and keep each under 8 words.",
				str(p, "business"), str(p, "positioning"))
		},
	},
	{
		Name:  "content_repurposer",
		Model: modelFast,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Repurpose the following content into a %s.\nTarget tone: %s\n---\n%s",
				strOr(p, "format", "LinkedIn post"), strOr(p, "tone", "professional"), str(p, "content"))
		},
	},
	{
		Name:  "review_responder",
		Model: modelFast,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Draft a reply from %s to this customer review. Rating: %s. Be gracious, specific, and under 120 words.\n---\n%s",
				str(p, "business"), strOr(p, "rating", "unknown"), str(p, "review"))
		},
	},
	{
		Name:         "landing_page_critique",
		Model:        modelPro,
		OutputSchema: critiqueSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Critique this landing page copy for conversion. Score it 0-100 and list strengths, weaknesses, and recommendations.\n---\n%s",
				str(p, "copy"))
		},
	},
	{
		Name:         "audience_insights",
		Model:        modelPro,
		OutputSchema: audienceSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Segment the likely audience for %s (%s) and give a messaging angle per segment.\nProduct: %s",
				str(p, "business"), str(p, "industry"), str(p, "product"))
		},
	},
	{
		Name:  "press_release",
		Model: modelPro,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Write a press release for %s announcing: %s\nQuote from: %s\nFollow AP style with a headline, dateline, and boilerplate.",
				str(p, "business"), str(p, "announcement"), strOr(p, "spokesperson", "the founder"))
		},
	},
	{
		Name:         "hashtag_curator",
		Model:        modelFast,
		OutputSchema: hashtagSchema,
		BuildPrompt: func(p map[string]any) string {
			return fmt.Sprintf(
				"Curate hashtags for a %s post about %s. Split them into broad-reach and niche sets.",
				strOr(p, "platform", "Instagram"), str(p, "topic"))
		},
	},
}
