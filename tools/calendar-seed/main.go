package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// calendar-seed provisions a demo weekly calendar for an owner through the
// scheduling API: one service type and a Monday-Friday working-hours rule.

func main() {
	var (
		baseURL = flag.String("base-url", getenv("BASE_URL", "http://localhost:8084"), "scheduling service base url")
		ownerID = flag.String("owner-id", getenv("OWNER_ID", ""), "owner id to seed")
		start   = flag.String("start", getenv("START_TIME", "09:00"), "daily window start (HH:MM)")
		end     = flag.String("end", getenv("END_TIME", "17:00"), "daily window end (HH:MM)")
		slot    = flag.Int("slot-minutes", 30, "slot duration in minutes")
	)
	flag.Parse()

	if strings.TrimSpace(*ownerID) == "" {
		fatal("OWNER_ID is required")
	}
	base := strings.TrimRight(*baseURL, "/")

	if err := post(base+"/api/v1/service-types", *ownerID, map[string]any{
		"name":             "Standard appointment",
		"duration_minutes": *slot,
	}); err != nil {
		fatal(err.Error())
	}

	// Weekdays only: 0 (Monday) through 4 (Friday).
	for weekday := 0; weekday <= 4; weekday++ {
		if err := post(base+"/api/v1/availability/rules", *ownerID, map[string]any{
			"day_of_week":           weekday,
			"start_time":            *start,
			"end_time":              *end,
			"slot_duration_minutes": *slot,
		}); err != nil {
			fatal(err.Error())
		}
	}

	fmt.Printf("seeded calendar for owner %s (%s-%s, %d-minute slots)\n", *ownerID, *start, *end, *slot)
}

func post(url, ownerID string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-Id", ownerID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
