// Package landing はランディングページの文言と描画を提供する。
package landing

import (
	"encoding/json"
	"fmt"
	"os"
)

// Feature は特徴カード1枚分の文言。
type Feature struct {
	Icon        string `json:"icon"` // home, shield, clock
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Content はページに表示する文言一式。
// Subheading、Footnote、Feature.Descriptionはインライン要素のHTMLを含められる。
type Content struct {
	Title           string    `json:"title"`
	LogoAlt         string    `json:"logo_alt"`
	Badge           string    `json:"badge"`
	HeadlineLead    string    `json:"headline_lead"`
	HeadlineAccent  string    `json:"headline_accent"`
	Subheading      string    `json:"subheading"`
	Placeholder     string    `json:"placeholder"`
	ButtonLabel     string    `json:"button_label"`
	ButtonBusyLabel string    `json:"button_busy_label"`
	SuccessMessage  string    `json:"success_message"`
	Footnote        string    `json:"footnote"`
	Features        []Feature `json:"features"`
}

// DefaultContent は既定の文言を返す。
func DefaultContent() Content {
	return Content{
		Title:           "Therapy On Demand | Coming Soon",
		LogoAlt:         "Therapy On Demand",
		Badge:           "Coming Soon",
		HeadlineLead:    "Professional Massage,",
		HeadlineAccent:  "Wherever You Are",
		Subheading:      "Book licensed massage therapists who come to you. Relax at home, work, or wherever you need relief.",
		Placeholder:     "Enter your email",
		ButtonLabel:     "Notify Me",
		ButtonBusyLabel: "Saving...",
		SuccessMessage:  "Thanks! We'll notify you when we launch.",
		Footnote:        "Be the first to know when we launch. No spam, ever.",
		Features: []Feature{
			{Icon: "home", Title: "We Come to You", Description: "Book a massage at your home, office, or hotel"},
			{Icon: "shield", Title: "Licensed Therapists", Description: "Certified professionals with verified credentials"},
			{Icon: "clock", Title: "Book in Minutes", Description: "Easy scheduling with same-day availability"},
		},
	}
}

// LoadContent はJSONファイルの文言で既定値を上書きした Content を返す。
// pathが空の場合は既定値をそのまま返す。空文字列の項目は既定値を維持し、
// featuresを指定した場合は配列全体を置き換える。
func LoadContent(path string) (Content, error) {
	c := DefaultContent()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("failed to read landing content file: %w", err)
	}

	var override Content
	if err := json.Unmarshal(data, &override); err != nil {
		return Content{}, fmt.Errorf("failed to parse landing content file %s: %w", path, err)
	}

	return mergeContent(c, override), nil
}

func mergeContent(base, override Content) Content {
	pick := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	pick(&base.Title, override.Title)
	pick(&base.LogoAlt, override.LogoAlt)
	pick(&base.Badge, override.Badge)
	pick(&base.HeadlineLead, override.HeadlineLead)
	pick(&base.HeadlineAccent, override.HeadlineAccent)
	pick(&base.Subheading, override.Subheading)
	pick(&base.Placeholder, override.Placeholder)
	pick(&base.ButtonLabel, override.ButtonLabel)
	pick(&base.ButtonBusyLabel, override.ButtonBusyLabel)
	pick(&base.SuccessMessage, override.SuccessMessage)
	pick(&base.Footnote, override.Footnote)
	if len(override.Features) > 0 {
		base.Features = override.Features
	}
	return base
}
