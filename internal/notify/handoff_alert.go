package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/moving-call-relay/internal/callgraph"
	"github.com/wolfman30/moving-call-relay/internal/handoff"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// HandoffAlerter emails the sales desk when a caller is transferred so the
// specialist picking up already has the collected move details.
type HandoffAlerter struct {
	sender  EmailSender
	to      string
	company string
	logger  *logging.Logger
}

// NewHandoffAlerter emails handoff summaries to the given recipient via sender.
func NewHandoffAlerter(sender EmailSender, to, company string, logger *logging.Logger) *HandoffAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	if company == "" {
		company = "The Moving Company"
	}
	return &HandoffAlerter{sender: sender, to: strings.TrimSpace(to), company: company, logger: logger}
}

// Enabled reports whether alerts have both a sender and a recipient.
func (a *HandoffAlerter) Enabled() bool {
	return a != nil && a.sender != nil && a.to != ""
}

// NotifyHandoff sends the alert. It is a no-op when alerts are disabled.
func (a *HandoffAlerter) NotifyHandoff(ctx context.Context, h handoff.Handoff) error {
	if !a.Enabled() {
		return nil
	}
	msg := EmailMessage{
		To:      a.to,
		Subject: handoffSubject(a.company, h),
		Body:    handoffText(h),
		HTML:    handoffHTML(h),
	}
	if err := a.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: handoff alert for %s: %w", h.CallID, err)
	}
	a.logger.Debug("handoff alert sent", "call_id", h.CallID)
	return nil
}

func handoffSubject(company string, h handoff.Handoff) string {
	who := h.CustomerInfo.Name
	if who == "" {
		who = "caller " + h.CallID
	}
	return fmt.Sprintf("[%s] Call transferred: %s", company, who)
}

func handoffText(h handoff.Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call ID: %s\n", h.CallID)
	if len(h.RelatedCallIDs) > 0 {
		fmt.Fprintf(&b, "Related calls: %s\n", strings.Join(h.RelatedCallIDs, ", "))
	}
	if h.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", h.Reason)
	}
	b.WriteString("\nMove details:\n")
	info := h.CustomerInfo.Map()
	for _, name := range callgraph.FieldNames {
		value := info[name]
		if value == "" {
			value = "(not collected)"
		}
		fmt.Fprintf(&b, "  %s: %s\n", name, value)
	}
	b.WriteString("\nTranscript:\n")
	for _, m := range h.Transcript {
		fmt.Fprintf(&b, "  %s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func handoffHTML(h handoff.Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>Call ID:</strong> %s</p>", html.EscapeString(h.CallID))
	b.WriteString("<table>")
	info := h.CustomerInfo.Map()
	for _, name := range callgraph.FieldNames {
		if value, ok := info[name]; ok {
			fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", html.EscapeString(name), html.EscapeString(value))
		}
	}
	b.WriteString("</table><ol>")
	for _, m := range h.Transcript {
		fmt.Fprintf(&b, "<li><em>%s</em>: %s</li>", html.EscapeString(string(m.Role)), html.EscapeString(m.Content))
	}
	b.WriteString("</ol>")
	return b.String()
}
