// Package mediatypes classifies files by their guessed content type.
//
// Classification is a pure function of the path's extension: a built-in table
// is consulted first, then the platform MIME table. The result is one of a
// closed set of kinds:
//
//	mediatypes.KindGeneric  // "file"
//	mediatypes.KindImage    // "file.image"
//	mediatypes.KindVideo    // "file.video"
//	mediatypes.KindAudio    // "file.audio"
//	mediatypes.KindText     // "file.text"
//	mediatypes.KindPDF      // "file.document.pdf"
//
// Only images, videos and audio are eligible for the timeline:
//
//	if mediatypes.IsTimelineEligible(path) {
//	    schema := mediatypes.Schema(path)
//	}
//
// Files with missing or unknown extensions always classify as KindGeneric.
package mediatypes
