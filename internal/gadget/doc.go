// Package gadget reads the OAuth service declarations of gadget specs.
//
// A gadget declares the providers it talks to in ModulePrefs:
//
//	<Module>
//	  <ModulePrefs title="Contacts">
//	    <OAuth>
//	      <Service name="twitter">
//	        <Request url="https://api.twitter.com/oauth/request_token" method="POST"/>
//	        <Access url="https://api.twitter.com/oauth/access_token" method="POST"/>
//	        <Authorization url="https://api.twitter.com/oauth/authorize"/>
//	      </Service>
//	    </OAuth>
//	    <OAuth2>
//	      <Service name="google" scope="contacts.readonly">
//	        <Authorization url="https://accounts.google.com/o/oauth2/auth"/>
//	        <Token url="https://oauth2.googleapis.com/token"/>
//	      </Service>
//	    </OAuth2>
//	  </ModulePrefs>
//	</Module>
//
// Registry implements oauth.ServiceResolver over the specs it holds. A
// gadget with several services of one protocol must be addressed by service
// name; an empty name only resolves when the choice is unambiguous.
package gadget
