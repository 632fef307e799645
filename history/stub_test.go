package history

import "context"

type stubStore struct {
	name   string
	purges int
	closed bool
}

func (s *stubStore) SchedulerName() string                           { return s.name }
func (s *stubStore) SetSchedulerName(name string)                    { s.name = name }
func (s *stubStore) Get(context.Context, string) (*Entry, error)     { return nil, nil }
func (s *stubStore) Save(context.Context, *Entry) error              { return nil }
func (s *stubStore) Purge(context.Context) error                     { s.purges++; return nil }
func (s *stubStore) FilterLast(context.Context, int) ([]*Entry, error) { return nil, nil }
func (s *stubStore) FilterLastOfEveryJob(context.Context, int) ([]*Entry, error) {
	return nil, nil
}
func (s *stubStore) FilterLastOfEveryTrigger(context.Context, int) ([]*Entry, error) {
	return nil, nil
}
func (s *stubStore) TotalJobsExecuted(context.Context) (int, error)   { return 0, nil }
func (s *stubStore) TotalJobsFailed(context.Context) (int, error)     { return 0, nil }
func (s *stubStore) IncrementTotalJobsExecuted(context.Context) error { return nil }
func (s *stubStore) IncrementTotalJobsFailed(context.Context) error   { return nil }
func (s *stubStore) Close() error                                     { s.closed = true; return nil }
