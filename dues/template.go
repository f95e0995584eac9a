/*
template.go - Stage message rendering

PURPOSE:
  Pure substitution of member/month variables into a stage template.
  Rendering never fails: unknown or unmatched {placeholder} tokens are
  left verbatim in the output rather than treated as an error, so a
  typo in a template degrades to an odd-looking email, not a dropped
  reminder.

PLACEHOLDERS:
  {member_name}  member display name
  {month}        month name, e.g. "March"
  {year}         four-digit year
  {amount_due}   member's monthly dues amount
  {day}          stage threshold day-of-month
*/
package dues

import (
	"strconv"
	"strings"
)

// RenderedMessage is the output of template rendering.
type RenderedMessage struct {
	Subject string
	Body    string
}

// Render substitutes member and month variables into the template.
// Pure function; unknown placeholders pass through untouched.
func Render(t Template, m Member, month MonthKey) RenderedMessage {
	r := strings.NewReplacer(
		"{member_name}", m.Name,
		"{month}", month.MonthName(),
		"{year}", strconv.Itoa(month.Year()),
		"{amount_due}", m.MonthlyDues.StringFixed(2),
		"{day}", strconv.Itoa(t.Stage.Threshold()),
	)
	return RenderedMessage{
		Subject: r.Replace(t.Subject),
		Body:    r.Replace(t.Body),
	}
}
