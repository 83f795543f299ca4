package label

// VideoSpace is a frame-indexed space over a video's frame sequence.
type VideoSpace struct {
	frameSpace
	fps float64
}

func newVideoSpace(row *LabelRow, id string, numberOfFrames, width, height int64, fps float64) *VideoSpace {
	return &VideoSpace{
		frameSpace: *newFrameSpace(row, id, SpaceTypeVideo, numberOfFrames, width, height),
		fps:        fps,
	}
}

// Width returns the frame width in pixels.
func (s *VideoSpace) Width() int64 { return s.width }

// Height returns the frame height in pixels.
func (s *VideoSpace) Height() int64 { return s.height }

// FPS returns the source frame rate, or 0 when unknown.
func (s *VideoSpace) FPS() float64 { return s.fps }

// ImageSpace is a single still image, modelled as a frame-indexed space
// with exactly one frame.
type ImageSpace struct {
	frameSpace
}

func newImageSpace(row *LabelRow, id string, width, height int64) *ImageSpace {
	return &ImageSpace{
		frameSpace: *newFrameSpace(row, id, SpaceTypeImage, 1, width, height),
	}
}

// Width returns the image width in pixels.
func (s *ImageSpace) Width() int64 { return s.width }

// Height returns the image height in pixels.
func (s *ImageSpace) Height() int64 { return s.height }

// SceneSpace indexes a 3D scene's point-cloud events; event indices
// play the role of frame numbers.
type SceneSpace struct {
	frameSpace
}

func newSceneSpace(row *LabelRow, id string, numberOfEvents int64) *SceneSpace {
	return &SceneSpace{
		frameSpace: *newFrameSpace(row, id, SpaceTypePointCloud, numberOfEvents, 0, 0),
	}
}

// NumberOfEvents returns how many point-cloud events the space indexes.
func (s *SceneSpace) NumberOfEvents() int64 { return s.numberOfFrames }

// AudioSpace is a range-indexed space over an audio track, addressed in
// milliseconds from the start.
type AudioSpace struct {
	rangeSpace
}

func newAudioSpace(row *LabelRow, id string, durationMs int64) *AudioSpace {
	return &AudioSpace{
		rangeSpace: *newRangeSpace(row, id, SpaceTypeAudio, durationMs),
	}
}

// DurationMs returns the track length in milliseconds.
func (s *AudioSpace) DurationMs() int64 { return s.size }

// TextSpace is a range-indexed space over a text document, addressed in
// character offsets.
type TextSpace struct {
	rangeSpace
}

func newTextSpace(row *LabelRow, id string, numberOfChars int64) *TextSpace {
	return &TextSpace{
		rangeSpace: *newRangeSpace(row, id, SpaceTypeText, numberOfChars),
	}
}

// NumberOfChars returns the document length in characters.
func (s *TextSpace) NumberOfChars() int64 { return s.size }
