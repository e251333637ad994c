package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/salonflow/calendar-sync/libs/redisx"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

// Publishes a synthetic change-feed event so a running calendar session
// can be exercised without a second writer.
func main() {
	var (
		redisURL = flag.String("redis-url", getenv("REDIS_URL", "redis://localhost:6379/0"), "redis connection url")
		salonID  = flag.String("salon-id", getenv("SALON_ID", ""), "tenant to publish for")
		table    = flag.String("table", model.TableAppointments, "feed table (appointments, team_members, statuses)")
		kind     = flag.String("kind", string(model.ChangeInsert), "change kind (insert, update, delete)")
		id       = flag.String("id", "", "record id (generated when empty)")
		date     = flag.String("date", time.Now().Format("2006-01-02"), "appointment date")
		start    = flag.String("start", "10:00", "start time HH:MM")
		end      = flag.String("end", "10:30", "end time HH:MM")
		member   = flag.String("member-id", "", "team member id")
		status   = flag.String("status", model.StatusPending, "appointment status")
		client   = flag.String("client", "Walk-in", "client name")
	)
	flag.Parse()

	if strings.TrimSpace(*salonID) == "" {
		fatal("SALON_ID is required")
	}
	recordID := *id
	if recordID == "" {
		recordID = uuid.NewString()
	}

	ev := model.ChangeEvent{
		Kind:    model.ChangeKind(*kind),
		Table:   *table,
		SalonID: *salonID,
		ID:      recordID,
	}
	if ev.Kind != model.ChangeDelete && *table == model.TableAppointments {
		ev.Record = &model.Appointment{
			ID:           recordID,
			SalonID:      *salonID,
			Date:         *date,
			StartTime:    *start,
			EndTime:      *end,
			TeamMemberID: *member,
			Status:       *status,
			ClientName:   *client,
			CreatedAt:    time.Now().UTC(),
		}
	}
	if err := ev.Validate(); err != nil {
		fatal(err.Error())
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		fatal(err.Error())
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	channel := redisx.ChangeChannel(*salonID, *table)
	receivers, err := rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("channel=%s receivers=%d id=%s\n", channel, receivers, recordID)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
