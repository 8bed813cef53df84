// Package preview renders preview artifacts: image and PDF thumbnails and
// short video digests.
//
// Every generator takes an input path, an output path, a bounding [Box] and an
// overwrite flag. An existing output is never replaced unless overwrite is
// set; the check runs before any external process starts and fails with
// [ErrAlreadyExists].
//
// Video digests sample the clip with a policy that depends only on its
// duration (see [PlanSamples]), concatenate the samples and scale the result
// to fit the box without enlarging it. Images can be rendered by ImageMagick,
// libvips or a pure Go engine; PDFs always go through ImageMagick.
//
// [Batch] renders previews for stored timeline entries into a content
// addressed cache directory.
package preview
