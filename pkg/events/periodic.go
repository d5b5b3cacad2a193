package events

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/pkg/util"
)

// DefaultRefreshInterval is used when a non-positive period is configured.
const DefaultRefreshInterval = 30 * time.Second

// interval is a cron.Schedule that fires every d, including sub-second
// periods that cron.Every would round up.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw("cron_"+msg, kv...) }
func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw("cron_"+msg, append(kv, "err", err)...)
}

// Periodic publishes a fixed set of topics on a timer.
type Periodic struct {
	cron   *cron.Cron
	bus    *Bus
	topics []Topic
	log    *zap.SugaredLogger
}

// NewPeriodic schedules a publish of topics every period. Nothing fires
// until Start is called.
func NewPeriodic(bus *Bus, period time.Duration, log *zap.SugaredLogger, topics ...Topic) *Periodic {
	if period <= 0 {
		period = DefaultRefreshInterval
	}
	log = util.Sugar(log)
	cl := cronLogger{log}
	p := &Periodic{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		bus:    bus,
		topics: topics,
		log:    log,
	}
	p.cron.Schedule(interval(period), cron.FuncJob(p.tick))
	return p
}

// NewPeriodicSpec schedules topics with a standard 5-field cron expression.
func NewPeriodicSpec(bus *Bus, spec string, log *zap.SugaredLogger, topics ...Topic) (*Periodic, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	log = util.Sugar(log)
	cl := cronLogger{log}
	p := &Periodic{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		bus:    bus,
		topics: topics,
		log:    log,
	}
	p.cron.Schedule(sched, cron.FuncJob(p.tick))
	return p, nil
}

func (p *Periodic) tick() {
	for _, t := range p.topics {
		p.bus.Publish(t)
	}
}

func (p *Periodic) Start() {
	p.log.Infow("periodic_refresh_started", "topics", p.topics)
	p.cron.Start()
}

// Stop halts the timer and waits for a running tick to finish.
func (p *Periodic) Stop() {
	<-p.cron.Stop().Done()
	p.log.Infow("periodic_refresh_stopped")
}
