// Package engine defines the error model shared by every stage of a dynflow
// composition.
//
// # Error Classes
//
// Every failure that stops a composition is an *EngineError with one of four
// classes:
//
//   - config: a document that is not valid YAML or does not have the expected
//     shape
//   - template: a template that uses undeclared names, does not parse or fails
//     to evaluate
//   - io: a referenced file that could not be read; Path is the exact path tried
//   - policy: a composed dataflow rejected by a blocking policy
//
// Callers branch on the class with the Is helpers:
//
//	if engine.IsTemplateError(err) {
//	    fmt.Println("undeclared:", engine.UndeclaredNames(err))
//	}
//
// EngineError implements Unwrap, so the underlying cause stays reachable with
// errors.Is and errors.As. Is matches on class alone:
//
//	errors.Is(err, &engine.EngineError{Class: engine.ErrorClassIO})
package engine
