// Package ical renders scheduled recipes as an iCalendar feed that calendar
// apps can subscribe to.
package ical

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	ics "github.com/arran4/golang-ical"
)

const productID = "-//Recipe Yak//Schedule//EN"

// Event is one scheduled recipe. It spans its whole day.
type Event struct {
	ID         int64
	RecipeID   int64
	RecipeName string
	RecipeTime string
	On         time.Time
	CreatedAt  time.Time
}

type Options struct {
	Name        string
	Description string
	// BaseURL prefixes recipe links, e.g. "https://recipeyak.com".
	BaseURL string
}

// Render serializes events as a published calendar.
func Render(events []Event, opts Options) string {
	cal := ics.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.Description != "" {
		cal.SetXWRCalDesc(opts.Description)
	}

	for _, e := range events {
		// uid carries the table so ids never collide with other feeds
		event := cal.AddEvent(fmt.Sprintf("scheduled_recipe:%d", e.ID))
		created := e.CreatedAt.UTC()
		if created.IsZero() {
			created = e.On
		}
		event.SetCreatedTime(created)
		event.SetDtStampTime(created)
		event.SetModifiedAt(created)
		day := time.Date(e.On.Year(), e.On.Month(), e.On.Day(), 0, 0, 0, 0, time.UTC)
		event.SetAllDayStartAt(day)
		event.SetAllDayEndAt(day.AddDate(0, 0, 1))
		event.SetSummary(e.RecipeName)
		if e.RecipeTime != "" {
			event.SetDescription("Takes about " + e.RecipeTime)
		}
		if opts.BaseURL != "" {
			event.SetURL(RecipeURL(opts.BaseURL, e.RecipeID, e.RecipeName))
		}
		event.SetProperty(ics.ComponentProperty("TRANSP"), "TRANSPARENT")
	}
	return cal.Serialize()
}

// RecipeURL links to a recipe page as /recipes/<id>-<slug>.
func RecipeURL(baseURL string, recipeID int64, name string) string {
	return fmt.Sprintf("%s/recipes/%d-%s", strings.TrimRight(baseURL, "/"), recipeID, slugify(name))
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
