// Package domain defines the Dendrite narrative graph model.
//
// A story owns one root page. Pages are identified store-wide by a positive
// integer number and hold variants, the authored renditions of the page. Each
// variant offers options, and an option eventually resolves to the page a
// reader reaches by choosing it:
//
//	stories/{story}/pages/{page}/variants/{variant}/options/{option}
//
// Ancestry is carried by typed references (StoryRef, PageRef, VariantRef,
// OptionRef) instead of live document handles, so walking from an option to
// its story never touches the store.
//
// Submissions are pending, at-least-once-delivered requests that extend the
// graph. They are marked processed in the same atomic write that applies
// their effects.
package domain
