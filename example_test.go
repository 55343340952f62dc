package uischeduler_test

import (
	"context"
	"fmt"

	uischeduler "github.com/Swind/go-ui-scheduler"
)

// ExampleService demonstrates priority ordering with only one import.
func ExampleService() {
	svc, err := uischeduler.NewService(nil)
	if err != nil {
		panic(err)
	}
	defer svc.Stop()

	ctx := context.Background()
	_ = svc.Submit(ctx, func(s *uischeduler.Scheduler) {
		s.ScheduleTask(func(ctx context.Context) { fmt.Println("lowest") }, uischeduler.PriorityLowest)
		s.ScheduleTask(func(ctx context.Context) { fmt.Println("highest") }, uischeduler.PriorityHighest)
		s.ScheduleTask(func(ctx context.Context) { fmt.Println("normal") }, uischeduler.PriorityNormal)
	})
	_ = svc.WaitIdle(ctx)

	// Output:
	// highest
	// normal
	// lowest
}

// ExampleScheduler_ScheduleCoalescedRefresh shows repeated refresh requests
// for one view collapsing into one render.
func ExampleScheduler_ScheduleCoalescedRefresh() {
	svc, err := uischeduler.NewService(nil)
	if err != nil {
		panic(err)
	}
	defer svc.Stop()

	type view struct{ name string }
	list := &view{name: "list"}

	ctx := context.Background()
	_ = svc.Submit(ctx, func(s *uischeduler.Scheduler) {
		for i := 0; i < 3; i++ {
			s.ScheduleCoalescedRefresh(func(ctx context.Context) {
				fmt.Println("render", list.name)
			}, uischeduler.PriorityNormal, list)
		}
	})
	_ = svc.WaitIdle(ctx)

	// Output:
	// render list
}

// ExampleScheduler_DetectNow shows a dirty task refreshing its own view
// synchronously, exactly once.
func ExampleScheduler_DetectNow() {
	svc, err := uischeduler.NewService(nil)
	if err != nil {
		panic(err)
	}
	defer svc.Stop()

	scope := "form"
	ctx := context.Background()
	_ = svc.Submit(ctx, func(s *uischeduler.Scheduler) {
		s.ScheduleCoalescedRefresh(func(ctx context.Context) {
			sched := uischeduler.GetCurrentScheduler(ctx)
			for i := 0; i < 3; i++ {
				ran := sched.DetectNow(scope, func() { fmt.Println("detect") })
				fmt.Println("ran:", ran)
			}
		}, uischeduler.PriorityHigh, scope)
	})
	_ = svc.WaitIdle(ctx)

	// Output:
	// detect
	// ran: true
	// ran: false
	// ran: false
}
