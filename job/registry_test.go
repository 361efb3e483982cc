package job_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/codec"
	"github.com/quarrylabs/quarry/job"
)

type greetReq struct {
	Name string `json:"name" msgpack:"name"`
}

type greetResp struct {
	Greeting string `json:"greeting" msgpack:"greeting"`
}

func TestRegisterDefinition_EncodesAndDecodes(t *testing.T) {
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("greet",
		func(_ context.Context, req greetReq) (greetResp, error) {
			return greetResp{Greeting: "hello " + req.Name}, nil
		},
	))

	h, ok := reg.Get("greet")
	if !ok {
		t.Fatal("handler not registered")
	}

	payload, err := reg.Codec().Marshal(greetReq{Name: "quarry"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	raw, err := h(context.Background(), payload)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp greetResp
	if err := reg.Codec().Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if resp.Greeting != "hello quarry" {
		t.Errorf("greeting = %q, want %q", resp.Greeting, "hello quarry")
	}
}

func TestRegisterDefinition_HandlerErrorPropagates(t *testing.T) {
	reg := job.NewRegistry()
	want := errors.New("boom")

	job.RegisterDefinition(reg, job.NewDefinition("greet",
		func(_ context.Context, _ greetReq) (greetResp, error) {
			return greetResp{}, want
		},
	))

	h, _ := reg.Get("greet")
	if _, err := h(context.Background(), []byte(`{"name":"x"}`)); !errors.Is(err, want) {
		t.Errorf("handler error = %v, want %v", err, want)
	}
}

func TestRegisterDefinition_BadPayload(t *testing.T) {
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("greet",
		func(_ context.Context, req greetReq) (greetResp, error) {
			return greetResp{Greeting: req.Name}, nil
		},
	))

	h, _ := reg.Get("greet")
	_, err := h(context.Background(), []byte(`{not json`))
	if err == nil {
		t.Fatal("malformed payload accepted")
	}
	if !strings.Contains(err.Error(), "greet") {
		t.Errorf("error = %v, want job type named", err)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := job.NewRegistry()
	if _, ok := reg.Get("nope"); ok {
		t.Error("Get on empty registry returned a handler")
	}
}

func TestRegistry_Types(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("a",
		func(_ context.Context, _ greetReq) (greetResp, error) { return greetResp{}, nil }))
	job.RegisterDefinition(reg, job.NewDefinition("b",
		func(_ context.Context, _ greetReq) (greetResp, error) { return greetResp{}, nil }))

	types := reg.Types()
	slices.Sort(types)
	if want := []string{"a", "b"}; !slices.Equal(types, want) {
		t.Errorf("Types() = %v, want %v", types, want)
	}
}

func TestRegistry_Defaults(t *testing.T) {
	reg := job.NewRegistry()

	job.RegisterDefinition(reg, job.NewDefinition("greet",
		func(_ context.Context, req greetReq) (greetResp, error) {
			return greetResp{Greeting: req.Name}, nil
		},
		job.WithPriority(4), job.WithAutoCleanup(),
	))

	d, ok := reg.Defaults("greet")
	if !ok {
		t.Fatal("no defaults recorded for registered type")
	}
	if d.Priority != 4 || !d.AutoCleanup {
		t.Errorf("defaults = %+v, want priority 4 with auto-cleanup", d)
	}

	if _, ok := reg.Defaults("nope"); ok {
		t.Error("Defaults for unregistered type returned ok")
	}
}

func TestRegistry_MsgpackCodec(t *testing.T) {
	reg := job.NewRegistryWithCodec(codec.Msgpack{})

	job.RegisterDefinition(reg, job.NewDefinition("greet",
		func(_ context.Context, req greetReq) (greetResp, error) {
			return greetResp{Greeting: "hi " + req.Name}, nil
		},
	))

	payload, err := reg.Codec().Marshal(greetReq{Name: "pack"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	h, _ := reg.Get("greet")
	raw, err := h(context.Background(), payload)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp greetResp
	if err := reg.Codec().Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if resp.Greeting != "hi pack" {
		t.Errorf("greeting = %q, want %q", resp.Greeting, "hi pack")
	}
}
