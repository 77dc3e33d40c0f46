package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type consumerFunc func(ctx context.Context) error

func (f consumerFunc) Run(ctx context.Context) error { return f(ctx) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Level: logger.ParseLevel("error"), Output: io.Discard})
}

func TestServiceStopsWhenDependencyPingFails(t *testing.T) {
	started := false
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(),
		Dependencies: map[string]pinger{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
		Consumers: map[string]consumer{
			"orders": consumerFunc(func(context.Context) error { started = true; return nil }),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness error")
	}
	if started {
		t.Fatal("consumers must not start before dependencies are ready")
	}
}

func TestServiceReturnsConsumerFailure(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(),
		Consumers: map[string]consumer{
			"dispatch": consumerFunc(func(context.Context) error { return boom }),
			"orders": consumerFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestServiceStopsOnCancel(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(),
		Consumers: map[string]consumer{
			"orders": consumerFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}),
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	if _, err := NewService(ServiceParams{Config: &config.Config{}, Logger: testLogger()}); err == nil {
		t.Fatal("expected error without consumers")
	}
}
