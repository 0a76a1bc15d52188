package report

import "context"

// MultiSink fans a report out to every sink in order and stops at the first error
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, r *Report, meta Meta) error {
	for _, s := range m {
		if err := s.Write(ctx, r, meta); err != nil {
			return err
		}
	}
	return nil
}
