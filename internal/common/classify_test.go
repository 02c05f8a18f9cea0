package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(status int, code int) error {
	restErr := &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
	if code != 0 {
		restErr.Message = &discordgo.APIErrorMessage{Code: code}
	}
	return restErr
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "forbidden", err: restError(FORBIDDEN, 0), want: ErrPermissionDenied},
		{name: "unauthorized", err: restError(UNAUTHORIZED, 0), want: ErrPermissionDenied},
		{name: "rate limited", err: restError(RATE_LIMIT_EXCEEDED, 0), want: ErrTransientIO},
		{name: "bad gateway", err: restError(http.StatusBadGateway, 0), want: ErrTransientIO},
		{name: "unknown member", err: restError(DATA_NOT_FOUND, discordgo.ErrCodeUnknownMember), want: ErrUnknownMember},
		{name: "unknown role", err: restError(DATA_NOT_FOUND, discordgo.ErrCodeUnknownRole), want: ErrNotFound},
		{name: "deadline", err: fmt.Errorf("request: %w", context.DeadlineExceeded), want: ErrTransientIO},
	}
	for _, tt := range tests {
		got := Classify(tt.err)
		if !errors.Is(got, tt.want) {
			t.Fatalf("%s: Classify() = %v, want %v", tt.name, got, tt.want)
		}
		var restErr *discordgo.RESTError
		if errors.As(tt.err, &restErr) && !errors.As(got, &restErr) {
			t.Fatalf("%s: original REST error lost from the chain", tt.name)
		}
	}
}

func TestClassify_MessageCarriesStatus(t *testing.T) {
	got := Classify(restError(FORBIDDEN, 0)).Error()
	if !strings.Contains(got, "discord answered 403 Forbidden") {
		t.Fatalf("unexpected message %q", got)
	}
	got = Classify(restError(http.StatusBadGateway, 0)).Error()
	if !strings.Contains(got, "discord answered 502 Server error") {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestClassify_UnknownMemberIsNotFound(t *testing.T) {
	got := Classify(restError(DATA_NOT_FOUND, discordgo.ErrCodeUnknownMember))
	if !errors.Is(got, ErrNotFound) {
		t.Fatalf("expected unknown member to also be a not found error")
	}
}

func TestClassify_PassThrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
	plain := errors.New("boom")
	if got := Classify(plain); got != plain {
		t.Fatalf("expected unrelated error to be returned untouched, got %v", got)
	}
	if got := Classify(restError(http.StatusBadRequest, 0)); errors.Is(got, ErrTransientIO) || errors.Is(got, ErrPermissionDenied) {
		t.Fatalf("bad request should not be classified, got %v", got)
	}
	classified := fmt.Errorf("%w: x", ErrPermissionDenied)
	if got := Classify(classified); got != classified {
		t.Fatalf("expected already classified error to be returned as is")
	}
}
