// Package alert implements optional webhook alerting for sustained
// upstream outages, grounded on the teacher's
// internal/ratelimit/alerter.go DiscordAlerter (there keyed on token
// ratio; here generalized to "upstream stayed circuit-open past N
// consecutive health checks").
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Discord posts a Discord webhook message once an upstream's
// consecutive-open-check count reaches Threshold, then stays silent for
// Cooldown before it will fire again for that upstream.
type Discord struct {
	webhookURL string
	threshold  int
	cooldown   time.Duration
	client     *http.Client

	mu      sync.Mutex
	alerted map[string]time.Time
}

func NewDiscord(webhookURL string, threshold int, cooldown time.Duration) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		threshold:  threshold,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		alerted:    make(map[string]time.Time),
	}
}

// Check fires an alert for upstream once consecutiveOpenChecks crosses
// the configured threshold, subject to the per-upstream cooldown.
func (d *Discord) Check(upstream string, consecutiveOpenChecks int) {
	if d.threshold <= 0 || consecutiveOpenChecks < d.threshold {
		return
	}

	d.mu.Lock()
	last, seen := d.alerted[upstream]
	if seen && time.Since(last) < d.cooldown {
		d.mu.Unlock()
		return
	}
	d.alerted[upstream] = time.Now()
	d.mu.Unlock()

	d.send(upstream, consecutiveOpenChecks)
}

func (d *Discord) send(upstream string, consecutiveOpenChecks int) {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title": "mcp-router: upstream circuit stayed open",
				"color": 15158332,
				"fields": []map[string]any{
					{"name": "Upstream", "value": upstream, "inline": false},
					{"name": "Consecutive open health checks", "value": fmt.Sprintf("%d", consecutiveOpenChecks), "inline": false},
				},
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
}
