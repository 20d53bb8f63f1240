// Package output formats resources for the command line.
//
// Objects are printed as YAML, JSON or kind/name lines. Before encoding,
// Secret values are masked and noisy bookkeeping fields such as
// metadata.managedFields are removed:
//
//	p := output.NewPrinter(os.Stdout, output.Options{Format: output.FormatJSON})
//	if err := p.PrintObject(obj); err != nil {
//		return err
//	}
package output
