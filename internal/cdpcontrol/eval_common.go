package cdpcontrol

import "encoding/json"

// jsMediaHelper provides _media() (every audio/video element in document
// order) and _first() (the first one, or null).
const jsMediaHelper = `
function _media() { return Array.prototype.slice.call(document.querySelectorAll("audio, video")); }
function _first() { return document.querySelector("audio, video"); }
function _num(v, d) { return (typeof v === "number" && isFinite(v)) ? v : d; }
`

func jsJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// wrapJSEval wraps body so that its only inputs are the JSON-encoded args
// bound to the local "args" array, and every outcome is a JSON envelope string.
func wrapJSEval(args []any, body string) string {
	if args == nil {
		args = []any{}
	}
	return "(function(args){\n" + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})(` + jsJSON(args) + `)`
}
