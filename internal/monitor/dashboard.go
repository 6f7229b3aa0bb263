package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"golang.org/x/sync/errgroup"
)

// Dashboard renders live relay statistics in the terminal until the user
// presses q or the context ends.
type Dashboard struct {
	client   *Client
	interval time.Duration
	history  *History

	header *widgets.Paragraph
	users  *widgets.List
	online *widgets.SparklineGroup
	relay  *widgets.SparklineGroup
	totals *widgets.Table
}

func NewDashboard(client *Client, interval time.Duration) *Dashboard {
	return &Dashboard{
		client:   client,
		interval: interval,
		history:  NewHistory(120),
	}
}

func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer ui.Close()

	d.build()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan Sample, 1)
	g, ctx := errgroup.WithContext(ctx)

	// 1. [POLLER]
	g.Go(func() error {
		defer close(samples)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case samples <- d.poll(ctx):
			case <-ctx.Done():
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	})

	// 2. [RENDERER] owns every widget; termui is not safe for concurrent use.
	g.Go(func() error {
		events := ui.PollEvents()
		for {
			select {
			case e := <-events:
				switch e.ID {
				case "q", "<C-c>":
					cancel()
					return nil
				case "<Resize>":
					d.layout()
					d.render()
				}
			case s, ok := <-samples:
				if !ok {
					return nil
				}
				d.history.Add(s)
				d.update()
				d.render()
			case <-ctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

func (d *Dashboard) poll(ctx context.Context) Sample {
	s := Sample{At: time.Now()}
	s.Stats, s.Err = d.client.Stats(ctx)
	if s.Err == nil {
		s.Online, s.Err = d.client.Presence(ctx)
	}
	return s
}

func (d *Dashboard) build() {
	d.header = widgets.NewParagraph()
	d.header.Title = "presence-relay"

	d.users = widgets.NewList()
	d.users.Title = "Online users"

	onlineLine := widgets.NewSparkline()
	onlineLine.LineColor = ui.ColorGreen
	d.online = widgets.NewSparklineGroup(onlineLine)
	d.online.Title = "Online"

	relayLine := widgets.NewSparkline()
	relayLine.LineColor = ui.ColorCyan
	d.relay = widgets.NewSparklineGroup(relayLine)
	d.relay.Title = "Relayed / poll"

	d.totals = widgets.NewTable()
	d.totals.Title = "Totals"
	d.totals.Rows = [][]string{{"metric", "value"}}

	d.layout()
}

func (d *Dashboard) layout() {
	w, h := ui.TerminalDimensions()
	half := w / 2

	d.header.SetRect(0, 0, w, 3)
	d.online.SetRect(0, 3, half, 3+(h-3)/2)
	d.relay.SetRect(0, 3+(h-3)/2, half, h)
	d.totals.SetRect(half, 3, w, 14)
	d.users.SetRect(half, 14, w, h)
}

func (d *Dashboard) update() {
	last, ok := d.history.Last()
	if !ok {
		return
	}
	if last.Err != nil {
		d.header.Text = fmt.Sprintf("[%s](fg:red) %v", last.At.Format(time.TimeOnly), last.Err)
		return
	}

	st := last.Stats
	d.header.Text = fmt.Sprintf("%s  policy=%s  uptime=%s  (q to quit)",
		last.At.Format(time.TimeOnly), st.Policy, st.Uptime.Truncate(time.Second))

	d.online.Sparklines[0].Data = d.history.OnlineSeries()
	d.relay.Sparklines[0].Data = d.history.RelayRate()

	d.totals.Rows = [][]string{
		{"metric", "value"},
		{"online users", fmt.Sprint(st.OnlineUsers)},
		{"sessions", fmt.Sprint(st.Sessions)},
		{"broadcasts", fmt.Sprint(st.Broadcasts)},
		{"relayed", fmt.Sprint(st.Relayed)},
		{"delivered", fmt.Sprint(st.Delivered)},
		{"dropped events", fmt.Sprint(st.DroppedEvents)},
	}

	d.users.Rows = last.Online
	d.users.Title = fmt.Sprintf("Online users (%d)", len(last.Online))
	if len(last.Online) == 0 {
		d.users.Rows = []string{strings.Repeat("-", 3)}
	}
}

func (d *Dashboard) render() {
	ui.Render(d.header, d.online, d.relay, d.totals, d.users)
}
