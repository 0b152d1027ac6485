/*
medeye is the perception core of the MedEye medicine scanner.  It turns raw
camera frames into labeled, positioned object detections, cross-validates
them against text recognized in the same scene, and decides when a detection
is confident enough to surface to a user.

The neural-network execution engine and the OCR text engine are external
capabilities consumed through the InferenceEngine and OCREngine contracts;
this module owns the pre- and post-processing around them: letterboxed
tensor extraction (preprocess), output vector decoding, class-aware NMS and
inverse coordinate mapping (postprocess), expiry and brand text heuristics
(textex), confidence fusion with debouncing (fusion), and the single-flight
frame pipeline tying them together (pipeline).

See example usage in the cmd/medeye subdirectory.
*/
package medeye
