package cdpcontrol

import (
	"fmt"

	"github.com/dgnsrekt/tabaudio/internal/media"
)

// Primitive bodies read their inputs from args only; nothing from the caller's
// process is visible inside the page.
var primitiveBodies = map[media.Primitive]string{
	media.PrimitiveToggle: jsMediaHelper + `
var playing = Boolean(args[0]);
var els = _media();
for (var i = 0; i < els.length; i++) {
  if (playing) { els[i].pause(); continue; }
  try { var p = els[i].play(); if (p && typeof p.catch === "function") p.catch(function(){}); } catch(_) {}
}
return JSON.stringify({ok:true,data:{count:els.length}});`,

	media.PrimitiveGetState: jsMediaHelper + `
var m = _first();
if (!m) return JSON.stringify({ok:true,data:{currentTime:0,duration:0,volume:1,found:false}});
return JSON.stringify({ok:true,data:{
  currentTime:_num(m.currentTime, 0),
  duration:_num(m.duration, null),
  volume:_num(m.volume, 1),
  found:true
}});`,

	media.PrimitiveSeek: jsMediaHelper + `
var t = Number(args[0]);
if (!isFinite(t) || t < 0) return JSON.stringify({ok:false,error_code:"` + CodeValidation + `",error_message:"invalid seek time"});
var m = _first();
if (m) m.currentTime = t;
return JSON.stringify({ok:true,data:{count:m ? 1 : 0}});`,

	media.PrimitiveSetVolume: jsMediaHelper + `
var v = Number(args[0]);
if (!isFinite(v) || v < 0 || v > 1) return JSON.stringify({ok:false,error_code:"` + CodeValidation + `",error_message:"volume out of range"});
var els = _media();
for (var i = 0; i < els.length; i++) els[i].volume = v;
return JSON.stringify({ok:true,data:{count:els.length}});`,

	media.PrimitiveProbe: jsMediaHelper + `
var els = _media();
var audible = false;
for (var i = 0; i < els.length; i++) {
  var m = els[i];
  if (!m.paused && !m.ended && !m.muted && m.volume > 0) { audible = true; break; }
}
return JSON.stringify({ok:true,data:{audible:audible,count:els.length}});`,
}

// jsForCall serializes a primitive call into an evaluable expression.
func jsForCall(call media.Call) (string, error) {
	body, ok := primitiveBodies[call.Primitive]
	if !call.Primitive.Valid() || !ok {
		return "", newError(CodeValidation, fmt.Sprintf("unknown primitive %q", call.Primitive), nil)
	}
	return wrapJSEval(call.Args, body), nil
}
