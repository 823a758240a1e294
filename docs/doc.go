// Package docs provides generated OpenAPI documentation.
//
// folio API
//
//	@title			folio API
//	@version		1.0
//	@description	Cleanup and revision pipeline for public-domain books.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/folio
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/folio/serve.go -o ./swagger --outputTypes go --parseDependency --parseInternal
