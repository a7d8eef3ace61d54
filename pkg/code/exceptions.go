package code

// Well-known exception class names (spec.md's exception taxonomy). Defined
// here, rather than in pkg/exception, so that pkg/builtins' NativeFuncs can
// name a class to raise without pkg/builtins depending on pkg/exception
// (which in turn depends on pkg/object, a heavier dependency than builtins'
// native implementations need to carry just to name an exception class).
const (
	EInternal          = "EInternal"
	EWrongType         = "EWrongType"
	EWrongArguments    = "EWrongArguments"
	EMissingProperty   = "EMissingProperty"
	ECannotLinearize   = "ECannotLinearize"
	EOutOfMemory       = "EOutOfMemory"
	ENumeric           = "ENumeric"
	ENotImplementedYet = "ENotImplementedYet"
	EMalformedModule   = "EMalformedModuleFile"
	EUnexpectedEOF     = "EUnexpectedEOF"
	EFileNotFound      = "EFileNotFound"
	ENativeModuleError = "ENativeModuleError"
)

// AllExceptionClasses lists every well-known class, for pkg/exception to
// build one prototype per entry without duplicating the list.
var AllExceptionClasses = []string{
	EInternal, EWrongType, EWrongArguments, EMissingProperty, ECannotLinearize,
	EOutOfMemory, ENumeric, ENotImplementedYet, EMalformedModule, EUnexpectedEOF,
	EFileNotFound, ENativeModuleError,
}
