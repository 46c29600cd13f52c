package switchboard

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextFire returns the duration until sched's next fire time after now.
// Parsed schedules always return a strictly future time, so the result
// is positive.
func nextFire(sched cron.Schedule, now time.Time) time.Duration {
	return sched.Next(now).Sub(now)
}

// digestLoop writes a registry stats line on the given cron schedule until
// ctx is cancelled.
func digestLoop(ctx context.Context, expr string, reg *Registry, out io.Writer) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		log.Printf("switchboard: invalid digest cron %q: %v", expr, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(nextFire(sched, time.Now())):
		}
		s := reg.Stats()
		fmt.Fprintf(out, "digest: %d connections, %d online users, %d events relayed\n",
			s.Connections, s.OnlineUsers, s.Relayed)
	}
}
