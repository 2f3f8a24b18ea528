// Package consumer holds the container's OAuth consumer registrations: the
// key/secret or client id/secret issued by a provider for a gadget service.
//
// Two backends are available. FileStore reads a YAML file and can reload it
// on change:
//
//	consumers:
//	  - appUrl: http://x/gadget.xml
//	    service: twitter
//	    protocol: oauth
//	    consumerKey: ck
//	    consumerSecret: cs
//	  - appUrl: "*"
//	    service: google
//	    protocol: oauth2
//	    clientId: id
//	    clientSecret: secret
//
// SQLiteStore keeps the same records in a table and accepts writes from the
// CLI. An appUrl of "*" applies to any gadget; an exact appUrl wins over it.
package consumer
