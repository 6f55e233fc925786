// Package interpolate resolves `spec:inputs` declarations against the values a
// caller supplies and substitutes `$[[ ... ]]` blocks throughout a document.
//
// An included file may open with a header document:
//
//	spec:
//	  inputs:
//	    stage:
//	      default: test
//	    parallel:
//	      type: number
//	---
//	job:
//	  stage: $[[ inputs.stage ]]
//	  parallel: $[[ inputs.parallel ]]
//
// Input values are type checked as cty values. A scalar that consists of
// exactly one block is replaced by the value itself, so numbers stay numbers
// and arrays become sequences; any other occurrence is textual.
//
// Blocks may pipe the value through functions from a fixed registry:
//
//	$[[ inputs.message | expand_vars | truncate(0, 10) | posix_quote ]]
//
// Scanning is driven by strings.Index, so the cost is linear in the size of
// the document.
package interpolate
