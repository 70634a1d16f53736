package content

const (
	ToolArticle           = "article"
	ToolBlogTitles        = "blog_titles"
	ToolImage             = "image"
	ToolBackgroundRemoval = "background_removal"
	ToolObjectRemoval     = "object_removal"
	ToolResumeReview      = "resume_review"
)

var KnownTools = []string{
	ToolArticle,
	ToolBlogTitles,
	ToolImage,
	ToolBackgroundRemoval,
	ToolObjectRemoval,
	ToolResumeReview,
}

func IsKnownTool(tool string) bool {
	for _, t := range KnownTools {
		if t == tool {
			return true
		}
	}
	return false
}

// IsImageTool reports tools that run on the job worker.
func IsImageTool(tool string) bool {
	switch tool {
	case ToolImage, ToolBackgroundRemoval, ToolObjectRemoval:
		return true
	}
	return false
}
