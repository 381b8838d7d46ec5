// Package expander widens recall by turning one question into a short list
// of alternate phrasings. Every implementation returns the original query
// first and never more than its configured variant cap.
package expander
