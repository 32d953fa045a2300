package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/billing"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/chartgen"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/exchange"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/workday"
)

// Block is one structured segment of the report body, shaped after Slack's
// Block Kit. Text is plain for header blocks and mrkdwn otherwise.
type Block struct {
	Type   string
	Text   string
	Fields []string
}

// Block types understood by the notifier.
const (
	BlockHeader  = "header"
	BlockSection = "section"
	BlockDivider = "divider"
	BlockContext = "context"
)

// Message is the composed report, consumed once by the notifier.
type Message struct {
	Headline string
	Blocks   []Block
	Chart    *chartgen.Artifact
}

// Text flattens the message body for substring checks and fallback rendering.
func (m Message) Text() string {
	parts := make([]string, 0, len(m.Blocks)+1)
	parts = append(parts, m.Headline)
	for _, b := range m.Blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
		parts = append(parts, b.Fields...)
	}
	return strings.Join(parts, "\n")
}

// StalenessNote is prefixed to the degraded-rate block so readers (and tests)
// can spot a non-live conversion at a glance.
const StalenessNote = "⚠️ Exchange rate is not live"

// Composer formats cost, rate, and chart into a report message. Compose is a
// pure function: identical inputs produce identical output.
type Composer struct {
	topServices int
}

// NewComposer constructs a composer. topServices bounds the breakdown list.
func NewComposer(topServices int) *Composer {
	if topServices <= 0 {
		topServices = 10
	}
	return &Composer{topServices: topServices}
}

// Compose builds the report for a confirmed reporting day.
func (c *Composer) Compose(day workday.ReportingDay, snapshot billing.CostSnapshot, rate exchange.Rate, chart *chartgen.Artifact) Message {
	date := day.Date.Format("2006-01-02")

	headline := fmt.Sprintf("AWS cost report for %s: today %s %s (%s %s)",
		date,
		FormatUSD(snapshot.Today), snapshot.Currency,
		FormatKRW(rate.Convert(snapshot.Today)), rate.Quote,
	)

	blocks := []Block{
		{Type: BlockHeader, Text: "💰 AWS Cost Report"},
		{Type: BlockSection, Text: fmt.Sprintf("*%s (%s) spend summary*", date, day.Date.Weekday())},
		{Type: BlockDivider},
		{
			Type: BlockSection,
			Fields: []string{
				fmt.Sprintf("%s *Today's spend*\n%s", dailyMarker(snapshot.Today), pairText(snapshot.Today, rate)),
				fmt.Sprintf("%s *Month-to-date total*\n%s", monthlyMarker(snapshot.MonthToDate), pairText(snapshot.MonthToDate, rate)),
			},
		},
		{
			Type: BlockSection,
			Text: fmt.Sprintf("💱 *Exchange rate*: 1 %s = %s %s", rate.Base, FormatRate(rate.Value), rate.Quote),
		},
	}

	if !rate.Live() {
		blocks = append(blocks, Block{Type: BlockSection, Text: stalenessText(rate)})
	}

	if breakdown := breakdownBlock(snapshot, rate, c.topServices); breakdown != nil {
		blocks = append(blocks, Block{Type: BlockDivider}, *breakdown)
	}

	blocks = append(blocks,
		Block{Type: BlockDivider},
		Block{Type: BlockContext, Text: fmt.Sprintf("Report date: %s · rate source: %s", date, rate.Source)},
	)

	return Message{
		Headline: headline,
		Blocks:   blocks,
		Chart:    chart,
	}
}

func pairText(usd decimal.Decimal, rate exchange.Rate) string {
	return fmt.Sprintf("%s USD (%s KRW)", FormatUSD(usd), FormatKRW(rate.Convert(usd)))
}

func stalenessText(rate exchange.Rate) string {
	switch rate.Source {
	case exchange.SourceCached:
		return fmt.Sprintf("%s: using the last observed rate from %s.", StalenessNote, rate.AsOf.UTC().Format("2006-01-02 15:04 MST"))
	default:
		return fmt.Sprintf("%s: using the configured static fallback rate.", StalenessNote)
	}
}

func breakdownBlock(snapshot billing.CostSnapshot, rate exchange.Rate, limit int) *Block {
	top := snapshot.TopServices(limit)
	if len(top) == 0 {
		return nil
	}

	lines := make([]string, 0, len(top)+1)
	lines = append(lines, fmt.Sprintf("*Top services (month-to-date, %d shown)*", len(top)))
	for i, sc := range top {
		line := fmt.Sprintf("%d. %s: %s USD (%s KRW)",
			i+1, DisplayServiceName(sc.Service), FormatUSD(sc.Amount), FormatKRW(rate.Convert(sc.Amount)))
		if snapshot.MonthToDate.IsPositive() {
			share := sc.Amount.Div(snapshot.MonthToDate).Mul(decimal.NewFromInt(100))
			line += fmt.Sprintf(" · %s%%", share.StringFixed(1))
		}
		lines = append(lines, line)
	}

	return &Block{Type: BlockSection, Text: strings.Join(lines, "\n")}
}

// dailyMarker bands today's spend into green/yellow/red attention levels.
func dailyMarker(usd decimal.Decimal) string {
	switch {
	case usd.GreaterThanOrEqual(decimal.NewFromInt(10)):
		return "🔴"
	case usd.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return "🟡"
	default:
		return "🟢"
	}
}

func monthlyMarker(usd decimal.Decimal) string {
	switch {
	case usd.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return "🔴"
	case usd.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return "🟡"
	default:
		return "🟢"
	}
}
