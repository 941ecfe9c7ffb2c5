package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/plugin-signal/api"
)

type LocalTestSuite struct {
	suite.Suite
	factory *Factory
	signal  *Local[int]
}

func TestLocalTestSuite(t *testing.T) {
	suite.Run(t, new(LocalTestSuite))
}

func (s *LocalTestSuite) SetupTest() {
	s.factory = newTestFactory(s.T(), nil)
	sig, err := NewLocal[int](s.factory)
	s.Require().NoError(err)
	s.signal = sig
	s.T().Cleanup(func() { _ = sig.Close() })
}

func (s *LocalTestSuite) subscribe() api.Subscription[int] {
	sub, err := s.signal.Subscribe()
	s.Require().NoError(err)
	return sub
}

func (s *LocalTestSuite) TestSendThenReceive() {
	sub := s.subscribe()
	s.Require().NoError(s.signal.Send(7))

	v, err := sub.ReceiveTimeout(time.Second)
	s.Require().NoError(err)
	s.Require().Equal(7, v)
	s.Require().Equal(7, s.signal.Latest())
}

func (s *LocalTestSuite) TestSendsCoalesce() {
	sub := s.subscribe()
	for i := 1; i <= 5; i++ {
		s.Require().NoError(s.signal.Send(i))
	}

	v, err := sub.ReceiveTimeout(0)
	s.Require().NoError(err)
	s.Require().Equal(5, v)

	v, err = sub.ReceiveTimeout(0)
	s.Require().ErrorIs(err, ErrTimeout)
	s.Require().Equal(5, v)
}

func (s *LocalTestSuite) TestLateSubscriberIsNotReleased() {
	s.Require().NoError(s.signal.Send(1))
	sub := s.subscribe()

	v, err := sub.ReceiveTimeout(20 * time.Millisecond)
	s.Require().ErrorIs(err, ErrTimeout)
	s.Require().Equal(1, v)
}

func (s *LocalTestSuite) TestReceiveBlocksUntilSend() {
	sub := s.subscribe()
	got := make(chan int, 1)
	go func() {
		v, err := sub.Receive(context.Background())
		s.NoError(err)
		got <- v
	}()

	select {
	case <-got:
		s.FailNow("receive returned before send")
	case <-time.After(30 * time.Millisecond):
	}
	s.Require().NoError(s.signal.Send(3))
	select {
	case v := <-got:
		s.Require().Equal(3, v)
	case <-time.After(2 * time.Second):
		s.FailNow("receive was not released")
	}
}

func (s *LocalTestSuite) TestReceiveCancelled() {
	s.Require().NoError(s.signal.Send(9))
	sub := s.subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	v, err := sub.Receive(ctx)
	s.Require().ErrorIs(err, context.DeadlineExceeded)
	s.Require().Equal(9, v)
	s.Require().Equal(1.0, metricValue(s.T(), s.factory.Gatherer(), "plugin_signal_receives_total",
		map[string]string{"kind": kindLocal, "result": resultCancelled}))
}

func (s *LocalTestSuite) TestFanOut() {
	const n = 16
	subs := make([]api.Subscription[int], n)
	for i := range subs {
		subs[i] = s.subscribe()
	}
	s.Require().Equal(n, s.signal.Subscribers())

	var wg sync.WaitGroup
	results := make(chan int, n)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub api.Subscription[int]) {
			defer wg.Done()
			v, err := sub.ReceiveTimeout(2 * time.Second)
			s.NoError(err)
			results <- v
		}(sub)
	}
	s.Require().NoError(s.signal.Send(42))
	wg.Wait()
	close(results)
	for v := range results {
		s.Require().Equal(42, v)
	}
	s.Require().Equal(float64(n), metricValue(s.T(), s.factory.Gatherer(), "plugin_signal_receives_total",
		map[string]string{"kind": kindLocal, "result": resultOK}))
}

func (s *LocalTestSuite) TestSubscriberClose() {
	sub := s.subscribe()
	done := make(chan error, 1)
	go func() {
		_, err := sub.Receive(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(sub.Close())
	s.Require().NoError(sub.Close())

	select {
	case err := <-done:
		s.Require().ErrorIs(err, ErrClosed)
	case <-time.After(2 * time.Second):
		s.FailNow("receive did not observe close")
	}
	s.Require().Zero(s.signal.Subscribers())
	s.Require().NoError(s.signal.Send(1))
}

func (s *LocalTestSuite) TestCloseReleasesWaiters() {
	sub := s.subscribe()
	done := make(chan error, 1)
	go func() {
		_, err := sub.ReceiveTimeout(-1)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.signal.Close())
	s.Require().NoError(s.signal.Close())

	select {
	case err := <-done:
		s.Require().ErrorIs(err, ErrClosed)
	case <-time.After(2 * time.Second):
		s.FailNow("receive did not observe close")
	}
	s.Require().ErrorIs(s.signal.Send(1), ErrClosed)
	_, err := s.signal.Subscribe()
	s.Require().ErrorIs(err, ErrClosed)
	_, err = sub.ReceiveTimeout(0)
	s.Require().ErrorIs(err, ErrClosed)
}

func (s *LocalTestSuite) TestSubscriberGauge() {
	sub := s.subscribe()
	labels := map[string]string{"kind": kindLocal}
	s.Require().Equal(1.0, metricValue(s.T(), s.factory.Gatherer(), "plugin_signal_subscribers", labels))
	s.Require().NoError(sub.Close())
	s.Require().Equal(0.0, metricValue(s.T(), s.factory.Gatherer(), "plugin_signal_subscribers", labels))
}

func (s *LocalTestSuite) TestReceiveAfterCloseWithPendingWake() {
	for i := 0; i < 100; i++ {
		sub := s.subscribe()
		s.Require().NoError(s.signal.Send(i))
		s.Require().NoError(sub.Close())

		_, err := sub.Receive(context.Background())
		s.Require().ErrorIs(err, ErrClosed)
		_, err = sub.ReceiveTimeout(0)
		s.Require().ErrorIs(err, ErrClosed)
		_, err = sub.ReceiveTimeout(time.Second)
		s.Require().ErrorIs(err, ErrClosed)
	}
}
