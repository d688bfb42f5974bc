// Package schema defines the records exchanged between the tagsync components.
//
// # Overview
//
// tagsync copies tags from a Danbooru downloader catalog into a TagStudio
// library and then asks Danbooru which of the newly created tags imply each
// other. The types in this package are the shared vocabulary for that flow:
//
//   - WorkItem: a tag waiting for implication discovery (one line of the work queue)
//   - ImplicationRecord: one antecedent/consequent pair returned by Danbooru
//   - TagEdge: a parent/child row in the TagStudio tag graph
//   - PostData: the tags a downloaded post carries, grouped by category
//   - Color: a TagStudio color reference (namespace + slug)
//
// # Work Queue Lines
//
// The work queue is newline-delimited JSON, one WorkItem per line:
//
//	{"tag_id":10,"tag":"blue_sky"}
//	{"tag_id":11,"tag":"sky"}
//
// # Implication Direction
//
// Danbooru reports "antecedent implies consequent" (blue_sky implies sky).
// When the work item tag is the antecedent the other tag becomes its child;
// when it is the consequent the other tag becomes its parent. See
// DirectionFor.
//
// # Usage Examples
//
//	item := schema.WorkItem{TagID: 10, TagName: "blue_sky"}
//	if err := item.Validate(); err != nil {
//	    return err
//	}
//
//	other, isChild, ok := schema.DirectionFor(item.TagName, rec)
package schema
