package cli

var (
	ImportDefinition    = importDefinition
	ValidateForms       = validateForms
	PrintValidation     = printValidation
	ReadSubmittedValues = readSubmittedValues
	ExportResults       = exportResults
)

type FormValidation = formValidation

var (
	GetIndexConfig = getIndexConfig
	RunServer      = runServer
)
