package cdpcontrol

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/tabaudio/internal/media"
)

func TestJSJSONHelper(t *testing.T) {
	if got := jsJSON([]any{true, 0.5, "a\nb"}); got != `[true,0.5,"a\nb"]` {
		t.Fatalf("jsJSON = %s", got)
	}
	if got := jsJSON(func() {}); got != "null" {
		t.Fatalf("jsJSON(func) = %s, want null", got)
	}
}

func TestJSEvalWrappers(t *testing.T) {
	syncExpr := wrapJSEval(nil, "return 1;")
	if !strings.HasPrefix(syncExpr, "(function(args){\ntry {") {
		t.Fatalf("unexpected sync wrapper: %s", syncExpr)
	}
	if !strings.HasSuffix(syncExpr, "})([])") {
		t.Fatalf("nil args should bind an empty array: %s", syncExpr)
	}

	argExpr := wrapJSEval([]any{1.5}, "return args[0];")
	if !strings.HasSuffix(argExpr, "})([1.5])") {
		t.Fatalf("wrapper lost args: %s", argExpr)
	}
}

func TestJSForCallCoversEveryPrimitive(t *testing.T) {
	calls := []media.Call{media.Toggle(true), media.GetState(), media.Seek(12), media.SetVolume(0.3), media.Probe()}
	for _, call := range calls {
		js, err := jsForCall(call)
		if err != nil {
			t.Fatalf("jsForCall(%s) error = %v", call, err)
		}
		if !strings.Contains(js, `querySelectorAll("audio, video")`) {
			t.Fatalf("jsForCall(%s) missing media helper", call)
		}
		if !strings.HasSuffix(js, "})("+jsJSON(call.Args)+")") && call.Args != nil {
			t.Fatalf("jsForCall(%s) did not bind args: %s", call, js)
		}
	}
}

func TestJSForCallRejectsUnknownPrimitive(t *testing.T) {
	_, err := jsForCall(media.Call{Primitive: "eval", Args: []any{"alert(1)"}})
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeValidation {
		t.Fatalf("jsForCall(unknown) error = %v, want %s", err, CodeValidation)
	}
}

func TestGetStateReportsDefaultsWithoutMedia(t *testing.T) {
	js, err := jsForCall(media.GetState())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js, "{currentTime:0,duration:0,volume:1,found:false}") {
		t.Fatalf("getState missing no-media default: %s", js)
	}
}
