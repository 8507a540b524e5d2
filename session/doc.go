/*
Package session drives the inspector protocol over the WebSocket URL advertised by a target's /json manifest.

Requests are JSON method calls carrying an id, and the target answers each one with a frame echoing that id.
The target may also push events, which carry a method name instead of an id.

A run proceeds as follows:

1. The client opens a WebSocket connection to the debugger URL.
2. The client sends one payload, normally a Runtime.evaluate call built from a script, and waits for the frame that answers it.
3. The answer is printed as a single line.
4. The client then either prints every further frame until interrupted, or polls a variable: it evaluates JSON.stringify(variable),
   waits for the answer, hands the value to a sink, sleeps for the interval and repeats.

Events and undecodable frames that arrive while a response is awaited are kept in arrival order and handed out after the turn.
A response to some other request is logged and dropped rather than taken for the awaited one.
Nothing is retried: a broken connection ends the run.
*/
package session
