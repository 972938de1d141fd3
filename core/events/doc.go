// Package events defines the typed stream event contract for a tutoring
// response.
//
// Every event a response stream yields is one of a closed set of kinds:
//
//   - ResponseTextSegment (text_chunk): one complete sentence of assistant
//     text, tagged with its sentence index.
//   - CanvasObjectCreated (canvas_object): a canvas object the assistant
//     created mid-response, already recorded on the session.
//   - ObjectReferenced (reference): the assistant pointed at an existing
//     canvas object.
//   - ResponseAudioSegment (audio_chunk): synthesized speech for one
//     sentence, tagged with the same index as its text.
//   - ResponseError (error): a failure report; positioned mid-stream when a
//     single sentence failed to synthesize, terminal when the response as a
//     whole failed.
//   - ResponseDone (done): terminal marker for a successful response.
//
// Ordering guarantees consumers may rely on:
//
//   - The text segment for sentence i is yielded before the audio segment
//     for sentence i.
//   - Audio segments appear in sentence-index order regardless of synthesis
//     completion order; a sentence whose synthesis failed is represented by
//     a ResponseError carrying that sentence index, in the same position its
//     audio would have held.
//   - A stream that was not cancelled always ends with exactly one
//     ResponseDone or one terminal ResponseError; nothing follows it.
//
// Events carry their creation timestamp and are safe to serialize one per
// record (kind + timestamp + payload) for push transports.
package events
