// Package compiler provides the Imp lexer, parser, label resolver and code
// generator targeting x86-64 GNU assembler (AT&T syntax, System V ABI).
//
// Pipeline: Imp source → Parse → ResolveLabels → Generate → assembly text
package compiler
