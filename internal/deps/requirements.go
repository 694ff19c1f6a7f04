package deps

import "quill/internal/config"

// Requirements lists the external binaries the pipeline shells out to.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	ffprobe := "ffprobe"
	if cfg != nil {
		ffmpeg = cfg.FFmpegBinary()
		ffprobe = cfg.FFprobeBinary()
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Extracts and cuts audio",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Validates media containers and audio streams",
		},
	}
}
