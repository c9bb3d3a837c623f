package model

// SourceReviewComment is an inline review comment as returned by the source system.
// ReviewID is zero when the source did not attach it to a review.
type SourceReviewComment struct {
	ID       int64
	ReviewID int64
}
