package cart

import (
	"context"
	"testing"

	"github.com/SeaWiser/shoes-sync/internal/localstore"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
)

type memBackend struct {
	values map[localstore.Domain][]byte
}

func (b *memBackend) Load(ctx context.Context, domain localstore.Domain) ([]byte, bool, error) {
	v, ok := b.values[domain]
	return v, ok, nil
}

func (b *memBackend) Save(ctx context.Context, domain localstore.Domain, value []byte) error {
	b.values[domain] = value
	return nil
}

func (b *memBackend) Delete(ctx context.Context, domain localstore.Domain) error {
	delete(b.values, domain)
	return nil
}

type stubWriter struct {
	err   error
	calls int
	last  string
}

func (w *stubWriter) WriteCart(ctx context.Context, serialized string) error {
	w.calls++
	w.last = serialized
	return w.err
}

func newService(t *testing.T, writer RemoteWriter) Service {
	t.Helper()
	store, err := localstore.New(context.Background(), &memBackend{values: map[localstore.Domain][]byte{}}, nil)
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	svc, err := NewService(ServiceParams{Store: store, Remote: writer})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestServiceAddPushesSerializedCart(t *testing.T) {
	t.Parallel()

	writer := &stubWriter{}
	svc := newService(t, writer)

	got, err := svc.Add(context.Background(), line("A", "42", "100", 1))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(got.Lines) != 1 {
		t.Fatalf("unexpected cart %+v", got)
	}
	if writer.calls != 1 || writer.last == "" {
		t.Fatalf("expected one remote push, got %d", writer.calls)
	}
	if current := svc.Current(); len(current.Lines) != 1 {
		t.Fatalf("cart not persisted locally: %+v", current)
	}
}

func TestServiceRollsBackOnRemoteRejection(t *testing.T) {
	t.Parallel()

	writer := &stubWriter{}
	svc := newService(t, writer)
	if _, err := svc.Add(context.Background(), line("A", "42", "100", 1)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	writer.err = pkgerrors.New(pkgerrors.CodeValidation, "cart rejected")
	got, err := svc.Add(context.Background(), line("B", "43", "50", 1))
	if err == nil {
		t.Fatalf("expected rejection to surface")
	}
	if len(got.Lines) != 1 || got.Lines[0].ProductID != "A" {
		t.Fatalf("expected rollback to previous cart, got %+v", got.Lines)
	}
	if current := svc.Current(); len(current.Lines) != 1 {
		t.Fatalf("local store should hold the restored cart, got %+v", current.Lines)
	}
}

func TestServiceKeepsOptimisticCartOnTransportFailure(t *testing.T) {
	t.Parallel()

	writer := &stubWriter{err: pkgerrors.New(pkgerrors.CodeTransport, "connection reset")}
	svc := newService(t, writer)

	got, err := svc.Add(context.Background(), line("A", "42", "100", 1))
	if err == nil {
		t.Fatalf("transport failure should surface")
	}
	if len(got.Lines) != 1 {
		t.Fatalf("optimistic cart must be kept, got %+v", got.Lines)
	}
	if current := svc.Current(); len(current.Lines) != 1 {
		t.Fatalf("local store must keep the optimistic cart, got %+v", current.Lines)
	}
}

func TestServiceWorksWithoutRemoteWriter(t *testing.T) {
	t.Parallel()

	svc := newService(t, nil)
	if _, err := svc.Add(context.Background(), line("A", "42", "100", 1)); err != nil {
		t.Fatalf("signed-out add: %v", err)
	}
	if svc.Current().IsEmpty() {
		t.Fatalf("cart should persist locally without a remote")
	}
}

func TestAdoptRemoteOnlyFillsEmptyCart(t *testing.T) {
	t.Parallel()

	svc := newService(t, &stubWriter{})
	remote := `{"lines":[{"id":"R","size":"41","price":"30","quantity":1}],"totalAmount":"30"}`

	if err := svc.AdoptRemote(context.Background(), remote); err != nil {
		t.Fatalf("AdoptRemote: %v", err)
	}
	if got := svc.Current(); len(got.Lines) != 1 || got.Lines[0].ProductID != "R" {
		t.Fatalf("empty cart should adopt remote, got %+v", got.Lines)
	}

	// a device with its own items keeps them
	if _, err := svc.Add(context.Background(), line("L", "42", "10", 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	other := `{"lines":[{"id":"X","size":"40","price":"5","quantity":9}]}`
	if err := svc.AdoptRemote(context.Background(), other); err != nil {
		t.Fatalf("AdoptRemote: %v", err)
	}
	got := svc.Current()
	for _, l := range got.Lines {
		if l.ProductID == "X" {
			t.Fatalf("non-empty cart must not adopt remote, got %+v", got.Lines)
		}
	}
}

func TestAdoptRemoteRejectsGarbage(t *testing.T) {
	t.Parallel()

	svc := newService(t, nil)
	err := svc.AdoptRemote(context.Background(), "{not json")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}
